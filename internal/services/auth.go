package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/oauth"
	"github.com/typephoon/backend/internal/token"
	"github.com/typephoon/backend/internal/typerr"
)

// OAuthStates issues and one-shot-checks login CSRF states.
type OAuthStates interface {
	Issue(ctx context.Context) (string, error)
	Check(ctx context.Context, state string) (bool, error)
}

// LoginResult carries everything the redirect handler turns into cookies.
type LoginResult struct {
	Username string
	Tokens   token.Pair
}

type AuthService struct {
	provider    oauth.Provider
	states      OAuthStates
	users       UserStore
	tokens      TokenPairMinter
	validator   TokenValidator
	guestTokens GuestTokens
	log         *logrus.Logger
}

func NewAuthService(
	provider oauth.Provider,
	states OAuthStates,
	users UserStore,
	tokens TokenPairMinter,
	validator TokenValidator,
	guestTokens GuestTokens,
	log *logrus.Logger,
) *AuthService {
	return &AuthService{
		provider:    provider,
		states:      states,
		users:       users,
		tokens:      tokens,
		validator:   validator,
		guestTokens: guestTokens,
		log:         log,
	}
}

// Login issues a CSRF state and returns the provider consent URL.
func (s *AuthService) Login(ctx context.Context) (string, error) {
	state, err := s.states.Issue(ctx)
	if err != nil {
		return "", err
	}
	return s.provider.AuthURL(state), nil
}

// LoginRedirect completes the OAuth dance: the state must match, the code is
// exchanged for a verified identity, the user row is upserted and a fresh
// token pair minted with the refresh token persisted.
func (s *AuthService) LoginRedirect(ctx context.Context, state, code string) (*LoginResult, error) {
	ok, err := s.states.Check(ctx, state)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, typerr.New(typerr.CodeKeyNotFound, "unknown login state")
	}

	guser, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	userID := s.provider.Name() + "-" + guser.ID

	pair, err := s.tokens.GenTokenPair(userID, guser.Name, models.UserTypeRegistered)
	if err != nil {
		return nil, err
	}
	if err := s.users.Upsert(ctx, userID, guser.Name); err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshToken(ctx, userID, pair.RefreshToken); err != nil {
		return nil, err
	}

	s.log.WithField("user_id", userID).Info("user logged in")
	return &LoginResult{Username: guser.Name, Tokens: pair}, nil
}

// Logout drops the stored refresh token so the pair cannot be renewed.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.validator.Validate(accessToken)
	if err != nil {
		return err
	}
	if claims.UserType != models.UserTypeRegistered {
		return nil
	}
	return s.users.ClearRefreshToken(ctx, claims.Subject)
}

// TokenRefresh rotates the pair. The presented refresh token must validate
// and match the one stored for the user; anything else is a missmatch the
// client fixes by logging in again.
func (s *AuthService) TokenRefresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.validator.Validate(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.RefreshToken.Valid || user.RefreshToken.String != refreshToken {
		return nil, typerr.New(typerr.CodeRefreshTokenMissmatch, "refresh token does not match")
	}

	pair, err := s.tokens.GenTokenPair(user.ID, user.Name, models.UserTypeRegistered)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}
	return &LoginResult{Username: user.Name, Tokens: pair}, nil
}

// GuestToken redeems a one-shot guest token key minted during queue-in.
func (s *AuthService) GuestToken(ctx context.Context, key string) (string, error) {
	return s.guestTokens.Get(ctx, key)
}

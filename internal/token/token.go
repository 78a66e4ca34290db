// Package token mints and validates the RS256 access/refresh token pair.
package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/models"
	"github.com/typephoon/backend/internal/typerr"
)

// Claims is the token payload: sub carries the user id.
type Claims struct {
	Name     string          `json:"name"`
	UserType models.UserType `json:"user_type"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Generator struct {
	cfg        config.TokenConfig
	privateKey *rsa.PrivateKey
}

func NewGenerator(cfg config.TokenConfig) (*Generator, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Generator{cfg: cfg, privateKey: key}, nil
}

func (g *Generator) sign(userID, username string, userType models.UserType, exp time.Time) (string, error) {
	iat := time.Now().UTC()
	claims := Claims{
		Name:     username,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(iat.Add(-time.Second)),
			IssuedAt:  jwt.NewNumericDate(iat),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.privateKey)
}

// GenAccessToken mints an access token. Guests get refresh-duration
// lifetimes because there is no refresh path for them.
func (g *Generator) GenAccessToken(userID, username string, userType models.UserType) (string, error) {
	dur := time.Duration(g.cfg.AccessDuration) * time.Second
	if userType == models.UserTypeGuest {
		dur = time.Duration(g.cfg.RefreshDuration) * time.Second
	}
	return g.sign(userID, username, userType, time.Now().UTC().Add(dur))
}

func (g *Generator) GenRefreshToken(userID, username string, userType models.UserType) (string, error) {
	dur := time.Duration(g.cfg.RefreshDuration) * time.Second
	return g.sign(userID, username, userType, time.Now().UTC().Add(dur))
}

func (g *Generator) GenTokenPair(userID, username string, userType models.UserType) (Pair, error) {
	access, err := g.GenAccessToken(userID, username, userType)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := g.GenRefreshToken(userID, username, userType)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

type Validator struct {
	publicKey *rsa.PublicKey
}

func NewValidator(cfg config.TokenConfig) (*Validator, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Validator{publicKey: key}, nil
}

// Validate verifies signature and time claims; any failure maps to
// INVALID_TOKEN.
func (v *Validator) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, typerr.Wrap(typerr.CodeInvalidToken, err)
	}
	return claims, nil
}

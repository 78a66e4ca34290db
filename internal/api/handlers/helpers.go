package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/token"
	"github.com/typephoon/backend/internal/typerr"
)

// Cookie names shared with the front end.
const (
	CookieAccessToken  = "TP_AT"
	CookieRefreshToken = "TP_RT"
	CookieUsername     = "USERNAME"
)

var statusByCode = map[typerr.Code]int{
	typerr.CodeInvalidToken:           http.StatusBadRequest,
	typerr.CodeRefreshTokenMissmatch:  http.StatusBadRequest,
	typerr.CodeKeyNotFound:            http.StatusBadRequest,
	typerr.CodeNotAParticipant:        http.StatusBadRequest,
	typerr.CodeGameNotFound:           http.StatusNotFound,
	typerr.CodeWordsNotFound:          http.StatusNotFound,
	typerr.CodeValidationError:        http.StatusUnprocessableEntity,
	typerr.CodeAMQPNotReady:           http.StatusServiceUnavailable,
	typerr.CodePublishNotAcknowledged: http.StatusInternalServerError,
}

// fail translates a service error into the JSON error envelope.
func fail(c *gin.Context, err error) {
	code := typerr.CodeOf(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": string(code)})
}

func failValidation(c *gin.Context, msg string) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": string(typerr.CodeValidationError), "detail": msg})
}

// accessToken reads the access-token cookie; absent means guest/anonymous.
func accessToken(c *gin.Context) string {
	tok, err := c.Cookie(CookieAccessToken)
	if err != nil {
		return ""
	}
	return tok
}

func refreshToken(c *gin.Context) string {
	tok, err := c.Cookie(CookieRefreshToken)
	if err != nil {
		return ""
	}
	return tok
}

// identity validates the access-token cookie. Handlers behind this helper
// accept both guests and registered users; the claims carry the difference.
func identity(c *gin.Context, validator interface {
	Validate(token string) (*token.Claims, error)
}) (*token.Claims, bool) {
	claims, err := validator.Validate(accessToken(c))
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return claims, true
}

// setAuthCookies installs the token pair and display name. The refresh token
// is scoped to the refresh endpoint so it never rides along other requests.
// gin url-encodes cookie values itself.
func setAuthCookies(c *gin.Context, cfg *config.Config, username string, pair token.Pair) {
	maxAge := cfg.Token.RefreshDuration
	c.SetCookie(CookieAccessToken, pair.AccessToken, maxAge, "/", "", true, true)
	c.SetCookie(CookieRefreshToken, pair.RefreshToken, maxAge, cfg.Token.RefreshEndpoint, "", true, true)
	c.SetCookie(CookieUsername, username, maxAge, "/", "", true, false)
}

func clearAuthCookies(c *gin.Context, cfg *config.Config) {
	c.SetCookie(CookieAccessToken, "", -1, "/", "", true, true)
	c.SetCookie(CookieRefreshToken, "", -1, cfg.Token.RefreshEndpoint, "", true, true)
	c.SetCookie(CookieUsername, "", -1, "/", "", true, false)
}

// gameIDParam parses the game_id query parameter.
func gameIDParam(c *gin.Context) (int64, bool) {
	var q struct {
		GameID int64 `form:"game_id" binding:"required"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		failValidation(c, "game_id is required")
		return 0, false
	}
	return q.GameID, true
}

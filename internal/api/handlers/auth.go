package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/typephoon/backend/internal/config"
	"github.com/typephoon/backend/internal/services"
)

// Login starts the OAuth dance: the client follows the returned URL to the
// provider's consent screen.
func Login(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		url, err := auth.Login(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

// LoginRedirect is the provider callback. On success the token pair lands in
// cookies and the browser goes back to the front end; any failure redirects
// to the error page instead of surfacing JSON to a human.
func LoginRedirect(auth *services.AuthService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := c.Query("state")
		code := c.Query("code")
		if state == "" || code == "" {
			c.Redirect(http.StatusFound, cfg.ErrorRedirect)
			return
		}

		res, err := auth.LoginRedirect(c.Request.Context(), state, code)
		if err != nil {
			c.Redirect(http.StatusFound, cfg.ErrorRedirect)
			return
		}

		setAuthCookies(c, cfg, res.Username, res.Tokens)
		c.Redirect(http.StatusFound, cfg.FrontEndEndpoint)
	}
}

func Logout(auth *services.AuthService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := auth.Logout(c.Request.Context(), accessToken(c)); err != nil {
			fail(c, err)
			return
		}
		clearAuthCookies(c, cfg)
		c.Status(http.StatusOK)
	}
}

// TokenRefresh rotates the cookie pair using the path-scoped refresh cookie.
func TokenRefresh(auth *services.AuthService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := auth.TokenRefresh(c.Request.Context(), refreshToken(c))
		if err != nil {
			clearAuthCookies(c, cfg)
			fail(c, err)
			return
		}
		setAuthCookies(c, cfg, res.Username, res.Tokens)
		c.Status(http.StatusOK)
	}
}

// GuestToken redeems the one-shot key handed out during queue-in and sets
// the guest's access cookie.
func GuestToken(auth *services.AuthService, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Query("key")
		if key == "" {
			failValidation(c, "key is required")
			return
		}

		tok, err := auth.GuestToken(c.Request.Context(), key)
		if err != nil {
			fail(c, err)
			return
		}
		c.SetCookie(CookieAccessToken, tok, cfg.Token.RefreshDuration, "/", "", true, true)
		c.Status(http.StatusOK)
	}
}

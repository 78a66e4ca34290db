package oauth

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/typephoon/backend/internal/config"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	googleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

	certsCacheTTL = time.Minute
)

// Google verifies logins against Google's OAuth2/OIDC endpoints. The id
// token signature is checked against Google's published JWKS.
type Google struct {
	cfg    config.GoogleConfig
	client *http.Client

	mu          sync.Mutex
	certs       map[string]*rsa.PublicKey
	certsLoaded time.Time
}

func NewGoogle(cfg config.GoogleConfig) *Google {
	return &Google{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthURL(state string) string {
	params := url.Values{
		"response_type": {"code"},
		"client_id":     {g.cfg.ClientID},
		"scope":         {"openid email profile"},
		"redirect_uri":  {g.cfg.RedirectURL},
		"state":         {state},
		"prompt":        {"select_account"},
	}
	return googleAuthURL + "?" + params.Encode()
}

type googleTokenResponse struct {
	IDToken string `json:"id_token"`
}

type googleIDClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

func (g *Google) Exchange(ctx context.Context, code string) (*User, error) {
	idToken, err := g.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return g.verifyIDToken(idToken)
}

// exchangeCode trades the authorization code for Google's id token.
func (g *Google) exchangeCode(ctx context.Context, code string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"code":          code,
		"client_id":     g.cfg.ClientID,
		"client_secret": g.cfg.ClientSecret,
		"redirect_uri":  g.cfg.RedirectURL,
		"grant_type":    "authorization_code",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("google token endpoint: status %d", resp.StatusCode)
	}

	var tr googleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}
	if tr.IDToken == "" {
		return "", fmt.Errorf("google token endpoint: no id_token")
	}
	return tr.IDToken, nil
}

// verifyIDToken checks the RS256 signature against Google's JWKS and pulls
// out the stable subject and display name.
func (g *Google) verifyIDToken(idToken string) (*User, error) {
	claims := &googleIDClaims{}
	tok, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("id token has no kid")
		}
		return g.publicKey(kid)
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	return &User{ID: claims.Subject, Name: claims.Name}, nil
}

type jwksDocument struct {
	Keys []struct {
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// publicKey resolves a kid against Google's cert set; the set is cached
// briefly because Google rotates keys rarely.
func (g *Google) publicKey(kid string) (*rsa.PublicKey, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.certsLoaded) > certsCacheTTL {
		certs, err := g.fetchCerts()
		if err != nil {
			return nil, err
		}
		g.certs = certs
		g.certsLoaded = time.Now()
	}

	key, ok := g.certs[kid]
	if !ok {
		return nil, fmt.Errorf("no matching public key for kid %s", kid)
	}
	return key, nil
}

func (g *Google) fetchCerts() (map[string]*rsa.PublicKey, error) {
	resp, err := g.client.Get(googleCertsURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	certs := map[string]*rsa.PublicKey{}
	for _, k := range doc.Keys {
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, err
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, err
		}
		certs[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	return certs, nil
}

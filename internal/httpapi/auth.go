// Package httpapi exposes Griffin's HTTP surface: plan CRUD, run
// triggering, and health/readiness probes, documented via huma and
// secured by a static API key or JWKS-validated bearer tokens.
package httpapi

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("httpapi: missing bearer token")
	ErrInvalidToken = errors.New("httpapi: invalid token")
	ErrJWKSFetch    = errors.New("httpapi: failed to fetch JWKS")
)

type contextKey string

const principalKey contextKey = "httpapi_principal"

// Principal identifies the caller a request was authenticated as.
type Principal struct {
	Subject string
	ViaJWT  bool
}

// GetPrincipal returns the Principal a request was authenticated as, or
// nil outside an authenticated request.
func GetPrincipal(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// Authenticator verifies a bearer token against a static API key hash, a
// JWKS-issued JWT, or both. At least one of apiKeyHash/jwksURL should be
// set outside local development.
type Authenticator struct {
	apiKeyHash string
	jwks       *jwksVerifier
}

// NewAuthenticator builds an Authenticator. jwksURL may be empty to
// disable JWT auth entirely.
func NewAuthenticator(apiKeyHash, jwksURL string) *Authenticator {
	a := &Authenticator{apiKeyHash: apiKeyHash}
	if jwksURL != "" {
		a.jwks = newJWKSVerifier(jwksURL)
	}
	return a
}

// Middleware rejects any request without a valid bearer token, storing
// the resulting Principal in the request's context otherwise.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
			return
		}

		principal, err := a.verify(r.Context(), token)
		if err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) verify(ctx context.Context, token string) (*Principal, error) {
	if a.apiKeyHash != "" && constantTimeHashEquals(token, a.apiKeyHash) {
		return &Principal{Subject: "api-key"}, nil
	}
	if a.jwks != nil {
		claims, err := a.jwks.VerifyToken(ctx, token)
		if err != nil {
			return nil, err
		}
		return &Principal{Subject: claims.Subject, ViaJWT: true}, nil
	}
	return nil, ErrInvalidToken
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer "), nil
	}
	return header, nil
}

func constantTimeHashEquals(token, wantHash string) bool {
	sum := sha256.Sum256([]byte(token))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(wantHash)) == 1
}

// jwksVerifier validates bearer JWTs against a configured JWKS endpoint.
// The fetch/cache/RSA-parse mechanism is the same shape as the teacher's
// Clerk JWKS verifier, generalized to any issuer's JWKS document instead
// of Clerk's specific claim set.
type jwksVerifier struct {
	jwksURL    string
	httpClient *http.Client

	cacheMu   sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func newJWKSVerifier(jwksURL string) *jwksVerifier {
	return &jwksVerifier{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
}

func (v *jwksVerifier) VerifyToken(ctx context.Context, tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("missing key id in token header")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *jwksVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.cacheMu.RLock()
	if key, ok := v.keys[kid]; ok && time.Now().Before(v.expiresAt) {
		v.cacheMu.RUnlock()
		return key, nil
	}
	v.cacheMu.RUnlock()

	if err := v.refresh(ctx); err != nil {
		return nil, err
	}

	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

func (v *jwksVerifier) refresh(ctx context.Context) error {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()

	if time.Now().Before(v.expiresAt) {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetch, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kty != "RSA" || k.Use != "sig" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	v.keys = keys
	v.expiresAt = time.Now().Add(1 * time.Hour)
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, err
	}
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}

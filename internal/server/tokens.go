package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/charmbracelet/log"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"

	"github.com/desertthunder/flx/internal/models"
)

// Claims are the custom claims carried by access tokens next to the registered ones.
type Claims struct {
	Email string `json:"email"`
}

// Validate implements [validator.CustomClaims].
func (c *Claims) Validate(context.Context) error {
	return nil
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenIssuer signs HS256 access tokens and validates them on the way back in.
type TokenIssuer struct {
	signer    jose.Signer
	validator *validator.Validator
	issuer    string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates a [TokenIssuer] for the shared secret.
func NewTokenIssuer(secret []byte, issuer, audience string, ttl time.Duration) (*TokenIssuer, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token signer: %w", err)
	}

	keyFunc := func(context.Context) (any, error) { return secret, nil }
	v, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims { return &Claims{} }),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token validator: %w", err)
	}

	return &TokenIssuer{signer: signer, validator: v, issuer: issuer, audience: audience, ttl: ttl, now: time.Now}, nil
}

// TTL is the lifetime of issued access tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs an access token for user.
func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	issued := t.now()
	registered := jwt.Claims{
		Issuer:   t.issuer,
		Subject:  user.ID,
		Audience: jwt.Audience{t.audience},
		IssuedAt: jwt.NewNumericDate(issued),
		Expiry:   jwt.NewNumericDate(issued.Add(t.ttl)),
	}

	raw, err := jwt.Signed(t.signer).Claims(registered).Claims(Claims{Email: user.Email}).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return raw, nil
}

// Verify validates a raw access token and returns its subject.
func (t *TokenIssuer) Verify(ctx context.Context, raw string) (Identity, error) {
	claims, err := t.validator.ValidateToken(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	id, ok := identityFrom(claims)
	if !ok {
		return Identity{}, errors.New("token has no subject")
	}
	return id, nil
}

// Middleware rejects requests without a valid bearer token and stores the validated claims in the request context.
func (t *TokenIssuer) Middleware(logger *log.Logger) Middleware {
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Debug("rejected bearer token", "path", r.URL.Path, "err", err)
		msg := "invalid access token"
		if errors.Is(err, jwtmiddleware.ErrJWTMissing) {
			msg = "missing access token"
		}
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeOAuthError(w, http.StatusUnauthorized, "invalid_token", msg)
	}

	mw := jwtmiddleware.New(t.validator.ValidateToken, jwtmiddleware.WithErrorHandler(onError))
	return func(next http.Handler) http.Handler {
		return mw.CheckJWT(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				onError(w, r, jwtmiddleware.ErrJWTInvalid)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// IdentityFromContext returns the caller stored by [TokenIssuer.Middleware].
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	return identityFrom(ctx.Value(jwtmiddleware.ContextKey{}))
}

func identityFrom(v any) (Identity, bool) {
	claims, ok := v.(*validator.ValidatedClaims)
	if !ok || claims.RegisteredClaims.Subject == "" {
		return Identity{}, false
	}
	id := Identity{UserID: claims.RegisteredClaims.Subject}
	if custom, ok := claims.CustomClaims.(*Claims); ok {
		id.Email = custom.Email
	}
	return id, true
}

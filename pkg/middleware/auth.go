package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/platinummonkey/funnelpulse/pkg/contextkeys"
	"github.com/platinummonkey/funnelpulse/pkg/httputil"
	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token
	ErrMissingToken = errors.New("missing authorization header")
	// ErrInvalidToken is returned when no verifier accepts the token
	ErrInvalidToken = errors.New("invalid or expired token")
)

// TokenVerifier validates a raw bearer token and returns the subject it was issued to
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// OIDCVerifier checks ID tokens against an OpenID Connect issuer
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and builds a verifier for clientID
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// NewOIDCVerifierWithKeySet builds a verifier without discovery, for issuers
// whose signing keys are distributed out of band
func NewOIDCVerifierWithKeySet(issuerURL, clientID string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{
		verifier: oidc.NewVerifier(issuerURL, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify implements TokenVerifier
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return idToken.Subject, nil
}

// HMACVerifier checks HS256 tokens minted with a shared secret. Used by
// deployments without an identity provider, e.g. the scheduler calling the API.
type HMACVerifier struct {
	secret []byte
	issuer string
}

// NewHMACVerifier creates a verifier for tokens signed with secret. When
// issuer is set the iss claim must match.
func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify implements TokenVerifier
func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// StaticTokenVerifier accepts a single preconfigured token
type StaticTokenVerifier struct {
	token   string
	subject string
}

// NewStaticTokenVerifier creates a verifier that maps token to subject
func NewStaticTokenVerifier(token, subject string) *StaticTokenVerifier {
	if subject == "" {
		subject = "admin"
	}
	return &StaticTokenVerifier{token: token, subject: subject}
}

// Verify implements TokenVerifier
func (v *StaticTokenVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	if v.token == "" || subtle.ConstantTimeCompare([]byte(rawToken), []byte(v.token)) != 1 {
		return "", ErrInvalidToken
	}
	return v.subject, nil
}

// ChainVerifier tries each verifier in order and returns the first success
type ChainVerifier []TokenVerifier

// Verify implements TokenVerifier
func (c ChainVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	var errs []error
	for _, v := range c {
		subject, err := v.Verify(ctx, rawToken)
		if err == nil {
			return subject, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrInvalidToken
	}
	return "", errors.Join(errs...)
}

// AdminAuthMiddleware requires a bearer token accepted by verifier and stores
// the verified subject in the request context
func AdminAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := bearerToken(r)
			if err != nil {
				httputil.WriteUnauthorized(w, err.Error())
				return
			}

			subject, err := verifier.Verify(r.Context(), rawToken)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("Rejected admin token")
				httputil.WriteUnauthorized(w, ErrInvalidToken.Error())
				return
			}

			ctx := contextkeys.WithSubject(r.Context(), subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", ErrMissingToken
	}

	// Format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

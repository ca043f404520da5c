package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// IdentityResolver looks up the canonical record for a token subject.
// A nil record with a nil error means the identity is absent.
type IdentityResolver interface {
	GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error)
}

// Authenticator is the per-service authentication filter. It runs in every
// internal service regardless of what the edge already checked.
type Authenticator struct {
	tokens   *TokenService
	resolver IdentityResolver
	public   []string
	degraded bool
	logger   *slog.Logger
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithPublicPrefixes sets the paths the filter skips entirely.
func WithPublicPrefixes(prefixes ...string) AuthenticatorOption {
	return func(a *Authenticator) { a.public = append([]string(nil), prefixes...) }
}

// WithDegradedPrincipal makes the filter fall back to a token-only principal
// when the resolver reports the identity absent.
func WithDegradedPrincipal(enabled bool) AuthenticatorOption {
	return func(a *Authenticator) { a.degraded = enabled }
}

// NewAuthenticator creates the filter.
func NewAuthenticator(tokens *TokenService, resolver IdentityResolver, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{
		tokens:   tokens,
		resolver: resolver,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Middleware never rejects a request. It attaches a Principal when the token
// verifies and resolves, and otherwise lets the request continue anonymous;
// routes that need a caller wrap themselves in RequireAuth.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublicPath(r.URL.Path, a.public) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.tokens.Verify(token)
		if err != nil {
			a.logger.Debug("token rejected",
				slog.String("path", r.URL.Path),
				slog.String("kind", Kind(err)),
			)
			next.ServeHTTP(w, r)
			return
		}

		if _, exists := PrincipalFromContext(r.Context()); exists {
			next.ServeHTTP(w, r)
			return
		}

		if p := a.resolve(r.Context(), claims); p != nil {
			r = r.WithContext(WithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

// resolve turns verified claims into a principal. Any failure, including a
// panic in the resolver, yields nil.
func (a *Authenticator) resolve(ctx context.Context, claims Claims) (p *Principal) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("cannot set user authentication",
				slog.String("username", claims.Subject),
				slog.String("panic", fmt.Sprint(rec)),
			)
			p = nil
		}
	}()

	record, err := a.resolver.GetUserByUsername(ctx, claims.Subject)
	if err != nil {
		a.logger.Warn("cannot set user authentication",
			slog.String("username", claims.Subject),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if record == nil {
		if a.degraded {
			a.logger.Warn("identity directory returned no record, using token-only principal",
				slog.String("username", claims.Subject),
			)
			return tokenOnlyPrincipal(claims)
		}
		return nil
	}

	// Usernames can be released and taken again; the token is bound to the
	// identity id it was issued for.
	if record.ID != claims.UserID {
		a.logger.Warn("token subject now belongs to another identity",
			slog.String("username", claims.Subject),
			slog.Int64("token_user_id", claims.UserID),
			slog.Int64("record_user_id", record.ID),
		)
		return nil
	}

	if !record.Active {
		a.logger.Info("inactive user presented a valid token",
			slog.String("username", record.Username),
		)
		return nil
	}

	return NewPrincipal(record.ID, record.Username, record.Email, record.Active, claims.roles)
}

// RequireAuth rejects requests that reached it without a principal.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. ok is false when the header is missing, uses another scheme, or
// carries an empty token.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IsPublicPath reports whether path starts with any of prefixes.
func IsPublicPath(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

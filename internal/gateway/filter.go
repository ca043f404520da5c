// Package gateway is the single public entry point. It validates bearer
// tokens at the edge, forwards the caller's identity as headers, and proxies
// requests to the internal services.
//
// The edge never consults the identity directory: a syntactically valid,
// correctly signed, unexpired token is enough to pass. Each service
// re-verifies the token on its own.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Karinaskol06/webchat-microservices/internal/auth"
)

// Identity headers set on forwarded requests.
const (
	HeaderUserID       = "X-User-Id"
	HeaderUsername     = "X-Username"
	HeaderErrorMessage = "X-Error-Message"
)

// DefaultPublicPrefixes are forwarded without a token.
var DefaultPublicPrefixes = []string{"/api/auth/", "/health", "/actuator/"}

// Outcome is where a request ends up after the edge check.
type Outcome int

const (
	Unchecked Outcome = iota
	PublicPass
	Rejected
	Authenticated
)

func (o Outcome) String() string {
	switch o {
	case PublicPass:
		return "public"
	case Rejected:
		return "rejected"
	case Authenticated:
		return "authenticated"
	default:
		return "unchecked"
	}
}

// Decision is the result of checking one request.
type Decision struct {
	Outcome Outcome
	Claims  auth.Claims
	Reason  string // set when Rejected
	Kind    string // token failure kind when Rejected by Verify
}

// EdgeFilter performs token validation at the gateway.
type EdgeFilter struct {
	tokens *auth.TokenService
	public []string
	logger *slog.Logger
}

// EdgeOption configures an EdgeFilter.
type EdgeOption func(*EdgeFilter)

// WithPublicPrefixes replaces DefaultPublicPrefixes.
func WithPublicPrefixes(prefixes ...string) EdgeOption {
	return func(f *EdgeFilter) { f.public = append([]string(nil), prefixes...) }
}

// NewEdgeFilter creates the filter.
func NewEdgeFilter(tokens *auth.TokenService, logger *slog.Logger, opts ...EdgeOption) *EdgeFilter {
	f := &EdgeFilter{
		tokens: tokens,
		public: DefaultPublicPrefixes,
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check decides the outcome for r without touching the response.
func (f *EdgeFilter) Check(r *http.Request) Decision {
	if auth.IsPublicPath(r.URL.Path, f.public) {
		return Decision{Outcome: PublicPass}
	}

	token, ok := auth.BearerToken(r)
	if !ok {
		return Decision{Outcome: Rejected, Reason: "Missing or invalid Authorization header"}
	}

	claims, err := f.tokens.Verify(token)
	if err != nil {
		kind := auth.Kind(err)
		return Decision{Outcome: Rejected, Kind: kind, Reason: rejectionReason(kind)}
	}

	return Decision{Outcome: Authenticated, Claims: claims}
}

// Middleware applies Check. Identity headers sent by the client are removed
// before anything else so they can only ever come from a verified token.
func (f *EdgeFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(HeaderUserID)
		r.Header.Del(HeaderUsername)

		d := f.Check(r)
		f.logger.Debug("edge check",
			slog.String("path", r.URL.Path),
			slog.String("outcome", d.Outcome.String()),
			slog.String("reason", d.Reason),
		)

		switch d.Outcome {
		case Rejected:
			unauthorized(w, d)
			return
		case Authenticated:
			r.Header.Set(HeaderUserID, strconv.FormatInt(d.Claims.UserID, 10))
			r.Header.Set(HeaderUsername, d.Claims.Subject)
		}
		next.ServeHTTP(w, r)
	})
}

func rejectionReason(kind string) string {
	switch kind {
	case "TokenExpired":
		return "Token expired"
	case "TokenSignatureInvalid":
		return "Token signature invalid"
	default:
		return "Token malformed"
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func unauthorized(w http.ResponseWriter, d Decision) {
	kind := d.Kind
	if kind == "" {
		kind = "unauthorized"
	}
	w.Header().Set(HeaderErrorMessage, d.Reason)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{Error: kind, Message: d.Reason})
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Karinaskol06/webchat-microservices/internal/middleware"
)

// Upstreams are the services behind the gateway.
type Upstreams struct {
	Auth  *url.URL
	Users *url.URL
}

// NewProxy forwards requests to target, keeping the request path. The
// inbound request id travels as X-Request-Id so the upstream logs it too.
func NewProxy(name string, target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
			if id := chimiddleware.GetReqID(pr.In.Context()); id != "" {
				pr.Out.Header.Set(chimiddleware.RequestIDHeader, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed",
				slog.String("upstream", name),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			writeGatewayJSON(w, status, errorBody{Error: "bad_gateway", Message: name + " unavailable"})
		},
	}
}

// NewRouter builds the gateway's handler. Only the public API prefixes are
// routed; the services' /internal/ API is unreachable through the gateway.
func NewRouter(up Upstreams, filter *EdgeFilter, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(filter.Middleware)

	authProxy := NewProxy("auth-service", up.Auth, logger)
	usersProxy := NewProxy("user-service", up.Users, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeGatewayJSON(w, http.StatusOK, map[string]string{"status": "UP", "service": "gateway"})
	})
	r.Handle("/api/auth/*", authProxy)
	r.Handle("/api/users", usersProxy)
	r.Handle("/api/users/*", usersProxy)

	return r
}

func writeGatewayJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

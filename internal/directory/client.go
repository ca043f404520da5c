package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Karinaskol06/webchat-microservices/internal/apperror"
	"github.com/Karinaskol06/webchat-microservices/internal/model"
)

// DefaultTimeout bounds every remote call.
const DefaultTimeout = 3 * time.Second

// maxErrorBody caps how much of an error response is read for diagnostics.
const maxErrorBody = 4 << 10

// Correlation headers sent with every call. The user-service's chi RequestID
// middleware adopts X-Request-Id, so both sides log the same id.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-Id"
)

// Client is the live Directory over HTTP/JSON. It is safe for concurrent use;
// the underlying http.Client pools connections.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

var _ Directory = (*Client)(nil)

// NewClient creates a client for the user-service at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("directory: invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		return nil, fmt.Errorf("directory: timeout must be positive, got %s", c.timeout)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

func (c *Client) RegisterUser(ctx context.Context, req model.RegisterRequest) (*model.IdentityRecord, error) {
	var out model.IdentityRecord
	if err := c.do(ctx, http.MethodPost, PathRegister, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUserByID(ctx context.Context, id int64) (*model.IdentityRecord, error) {
	var out model.IdentityRecord
	path := expand(PathByID, "id", strconv.FormatInt(id, 10))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetUserByUsername(ctx context.Context, username string) (*model.IdentityRecord, error) {
	var out model.IdentityRecord
	if err := c.do(ctx, http.MethodGet, expand(PathByUsername, "username", username), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var out bool
	if err := c.do(ctx, http.MethodGet, expand(PathExistsByUsername, "username", username), nil, &out); err != nil {
		return false, err
	}
	return out, nil
}

func (c *Client) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var out bool
	if err := c.do(ctx, http.MethodGet, expand(PathExistsByEmail, "email", email), nil, &out); err != nil {
		return false, err
	}
	return out, nil
}

func (c *Client) ValidateCredentials(ctx context.Context, username, password string) (bool, error) {
	var out bool
	body := model.Credentials{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, PathValidate, body, &out); err != nil {
		return false, err
	}
	return out, nil
}

// ValidateAndGetInfo treats a 401 from the user-service as an answer
// ("invalid"), not as a failure.
func (c *Client) ValidateAndGetInfo(ctx context.Context, username, password string) (*model.CredentialsResult, error) {
	var out model.CredentialsResult
	body := model.Credentials{Username: username, Password: password}
	err := c.do(ctx, http.MethodPost, PathValidateAndInfo, body, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			return &model.CredentialsResult{Valid: false}, nil
		}
		return nil, err
	}
	return &out, nil
}

// StatusError is a non-2xx answer from the user-service.
type StatusError struct {
	Op      string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("directory: %s: status %d: %s", e.Op, e.Status, e.Message)
}

// do performs one bounded call. body is JSON-encoded when non-nil; a 2xx
// response is decoded into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: encoding %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("directory: building %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	id := correlationID(ctx)
	req.Header.Set(HeaderCorrelationID, id)
	req.Header.Set(HeaderRequestID, id)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Unavailable("user service unavailable",
			fmt.Errorf("directory: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	c.logger.Debug("directory call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
		slog.String("correlation_id", id),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(method+" "+path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Unavailable("user service returned an unreadable response",
			fmt.Errorf("directory: decoding %s %s: %w", method, path, err))
	}
	return nil
}

// statusError maps a non-2xx response onto the apperror taxonomy, keeping
// the remote diagnostic message where it is meant for clients.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := remoteMessage(raw)
	se := &StatusError{Op: op, Status: resp.StatusCode, Message: msg}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return &apperror.AppError{Err: errors.Join(apperror.ErrNotFound, se), Message: msg}
	case http.StatusBadRequest, http.StatusConflict:
		return &apperror.AppError{Err: errors.Join(apperror.ErrDuplicate, se), Message: msg}
	case http.StatusUnauthorized:
		return &apperror.AppError{Err: errors.Join(apperror.ErrInvalidCredentials, se), Message: msg}
	default:
		return apperror.Unavailable("user service unavailable", se)
	}
}

// remoteMessage extracts "message" from a JSON error body, or falls back to
// the raw text.
func remoteMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if s := strings.TrimSpace(string(raw)); s != "" {
		return s
	}
	return "no response body"
}

// expand substitutes one {name} path parameter, escaping the value.
func expand(pattern, name, value string) string {
	return strings.Replace(pattern, "{"+name+"}", url.PathEscape(value), 1)
}

// correlationID reuses the inbound chi request id so one id follows the
// request across services, and mints a UUID otherwise.
func correlationID(ctx context.Context) string {
	if id := chimiddleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

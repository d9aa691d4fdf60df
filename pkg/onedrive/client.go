// Package onedrive is a small Microsoft Graph client for the drive, subscription and
// user endpoints the gateway relies on. It authenticates as the application itself
// (client credentials) and maps Graph error bodies onto the sentinel errors below.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
)

// Logger is the logging interface used by the client.
type Logger = logger.Logger

const (
	// DefaultBaseURL is the root every Graph request is built from.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0/"
	// GraphScope is the only scope an app-only token can ask for.
	GraphScope = "https://graph.microsoft.com/.default"

	tokenURLTemplate = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"
)

// Sentinel errors. Every error returned by the client wraps one of these when the
// failure can be classified.
var (
	ErrReauthRequired     = errors.New("re-authentication required")
	ErrAccessDenied       = errors.New("access denied")
	ErrRetryLater         = errors.New("retry later")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrConflict           = errors.New("conflict")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrDecodingFailed     = errors.New("decoding failed")
	ErrOperationFailed    = errors.New("operation failed")
)

// Credentials identify the application registration used for app-only access.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// Client talks to Microsoft Graph on behalf of the application.
type Client struct {
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
	baseURL     string
	logger      Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph root (tests, national clouds).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		c.baseURL = baseURL
	}
}

// NewClient creates a client that fetches and caches app-only tokens with the
// client credentials grant.
func NewClient(ctx context.Context, creds Credentials, log Logger, opts ...Option) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     fmt.Sprintf(tokenURLTemplate, creds.TenantID),
		Scopes:       []string{GraphScope},
	}
	ts := oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))
	c := newClient(oauth2.NewClient(ctx, ts), ts, log)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithHTTP creates a client over an already authenticated http.Client.
// The token source may be nil when the caller never needs the raw token.
func NewClientWithHTTP(httpClient *http.Client, ts oauth2.TokenSource, log Logger, opts ...Option) *Client {
	c := newClient(httpClient, ts, log)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newClient(httpClient *http.Client, ts oauth2.TokenSource, log Logger) *Client {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Client{
		httpClient:  httpClient,
		tokenSource: ts,
		baseURL:     DefaultBaseURL,
		logger:      log,
	}
}

// BaseURL returns the Graph root the client builds URLs from.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AccessToken returns a current app-only access token. The proxy uses it to
// replace the caller's Authorization header.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if c.tokenSource == nil {
		return "", fmt.Errorf("%w: no token source configured", ErrReauthRequired)
	}
	tok, err := c.tokenSource.Token()
	if err != nil {
		return "", classifyTokenError(err)
	}
	return tok.AccessToken, nil
}

// apiCall performs an HTTP request against Graph. A 401 is retried once after the
// token source has had a chance to refresh; non-2xx responses are converted into
// wrapped sentinel errors and the body is closed.
func (c *Client) apiCall(ctx context.Context, method, url, contentType string, body io.ReadSeeker) (*http.Response, error) {
	return c.apiCallWithHeaders(ctx, method, url, contentType, body, nil)
}

func (c *Client) apiCallWithHeaders(ctx context.Context, method, url, contentType string, body io.ReadSeeker, headers map[string]string) (*http.Response, error) {
	if c.httpClient == nil {
		return nil, errors.New("HTTP client is nil, please provide a valid HTTP client")
	}

	var res *http.Response
	for attempt := 0; attempt < 2; attempt++ {
		c.logger.Debugf("apiCall %s %s (attempt %d)", method, url, attempt+1)

		var reqBody io.Reader
		if body != nil {
			reqBody = body
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		res, err = c.httpClient.Do(req)
		if err != nil {
			return nil, classifyTokenError(err)
		}

		if res.StatusCode != http.StatusUnauthorized || attempt == 1 {
			break
		}

		c.logger.Debug("received 401, retrying once with a refreshed token")
		closeBodySafely(res.Body, c.logger, "unauthorized response")
		if err := seekToStart(body); err != nil {
			return nil, fmt.Errorf("rewinding request body for retry: %w", err)
		}
	}

	if res.StatusCode >= 400 {
		defer closeBodySafely(res.Body, c.logger, "error response")
		return nil, errorFromResponse(res)
	}
	return res, nil
}

// classifyTokenError maps transport and token acquisition failures.
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_request", "invalid_client", "invalid_grant",
			"unauthorized_client", "unsupported_grant_type",
			"invalid_scope", "access_denied":
			return fmt.Errorf("%w: %w", ErrReauthRequired, err)
		case "server_error", "temporarily_unavailable":
			return fmt.Errorf("%w: %w", ErrRetryLater, err)
		default:
			return fmt.Errorf("token request failed: %w", err)
		}
	}
	return fmt.Errorf("network error: %w", err)
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// errorFromResponse translates a failed Graph response. The error code in the body
// wins over the status code when it is recognised.
func errorFromResponse(res *http.Response) error {
	raw := readErrorBody(res.Body)

	var ge graphError
	if err := json.Unmarshal([]byte(raw), &ge); err == nil && ge.Error.Code != "" {
		msg := ge.Error.Message
		switch strings.ToLower(ge.Error.Code) {
		case "accessdenied", "forbidden":
			return fmt.Errorf("%w: %s", ErrAccessDenied, msg)
		case "activitylimitreached", "toomanyrequests", "servicenotavailable":
			return fmt.Errorf("%w: %s", ErrRetryLater, msg)
		case "itemnotfound", "resourcenotfound":
			return fmt.Errorf("%w: %s", ErrResourceNotFound, msg)
		case "namealreadyexists":
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		case "resourcemodified", "preconditionfailed":
			return fmt.Errorf("%w: %s", ErrPreconditionFailed, msg)
		case "quotalimitreached", "insufficientquota":
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, msg)
		case "unauthenticated", "invalidauthenticationtoken":
			return fmt.Errorf("%w: %s", ErrReauthRequired, msg)
		case "invalidrange", "invalidrequest", "malwaredetected",
			"notallowed", "notsupported", "resyncrequired":
			return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
		}
		raw = msg
	}

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrReauthRequired, raw)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAccessDenied, raw)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %s", ErrResourceNotFound, raw)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, raw)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", ErrPreconditionFailed, raw)
	case http.StatusInsufficientStorage:
		return fmt.Errorf("%w: %s", ErrQuotaExceeded, raw)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 509:
		return fmt.Errorf("%w: %s", ErrRetryLater, raw)
	}
	if res.StatusCode >= 400 && res.StatusCode < 500 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, raw)
	}
	return fmt.Errorf("graph error: %s - %s", res.Status, raw)
}

// makeAPICallAndDecode performs an API call and decodes the JSON response into dest.
func (c *Client) makeAPICallAndDecode(ctx context.Context, method, apiURL string, payload any, dest any, operation string) error {
	var body io.ReadSeeker
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: encoding %s request: %w", ErrOperationFailed, operation, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	res, err := c.apiCall(ctx, method, apiURL, contentType, body)
	if err != nil {
		return err
	}
	defer closeBodySafely(res.Body, c.logger, operation)

	if dest == nil {
		return nil
	}
	if err := decodeJSON(res.Body, dest); err != nil {
		return fmt.Errorf("%w: decoding %s response: %w", ErrDecodingFailed, operation, err)
	}
	return nil
}

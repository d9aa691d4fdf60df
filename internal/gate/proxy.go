package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/policy"
	"github.com/tonimelisma/onedrive-gateway/internal/server"
)

// DefaultUpstream is the Graph root requests are forwarded to. The API version
// travels in the proxied path.
const DefaultUpstream = "https://graph.microsoft.com/"

// PathPrefix is stripped from inbound paths before forwarding.
const PathPrefix = "/proxy"

// ClaimsResolver derives the caller's folder grants from the request.
type ClaimsResolver interface {
	Resolve(r *http.Request) policy.ItemAccessConfiguration
}

// TokenProvider returns the service token sent upstream.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

type tokenKey struct{}

// Proxy authorises and forwards drive requests.
type Proxy struct {
	gate     *Gate
	claims   ClaimsResolver
	tokens   TokenProvider
	upstream *url.URL
	rp       *httputil.ReverseProxy
	logger   logger.Logger
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithUpstream overrides DefaultUpstream.
func WithUpstream(u *url.URL) ProxyOption {
	return func(p *Proxy) { p.upstream = u }
}

// WithTransport sets the transport used for upstream calls.
func WithTransport(rt http.RoundTripper) ProxyOption {
	return func(p *Proxy) { p.rp.Transport = rt }
}

// NewProxy creates a Proxy.
func NewProxy(g *Gate, claims ClaimsResolver, tokens TokenProvider, log logger.Logger, opts ...ProxyOption) *Proxy {
	upstream, _ := url.Parse(DefaultUpstream)
	p := &Proxy{
		gate:     g,
		claims:   claims,
		tokens:   tokens,
		upstream: upstream,
		logger:   log,
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: modifyResponse,
		ErrorHandler:   p.upstreamError,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register adds the proxy routes to mux.
func (p *Proxy) Register(mux interface {
	Handle(pattern string, h http.Handler)
}) {
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete} {
		mux.Handle(m+" "+PathPrefix+"/{version}/drives/{driveId}/items/{itemId}", http.HandlerFunc(p.serveItem))
		mux.Handle(m+" "+PathPrefix+"/{version}/drives/{driveId}/items/{itemId}/{rest...}", http.HandlerFunc(p.serveItem))
		mux.Handle(m+" "+PathPrefix+"/{version}/drives/{driveId}", http.HandlerFunc(p.serveDrive))
		mux.Handle(m+" "+PathPrefix+"/{version}/drives/{driveId}/{rest...}", http.HandlerFunc(p.serveDrive))
	}
	mux.Handle("POST "+PathPrefix+"/{version}/$batch", http.HandlerFunc(p.serveBatch))
	mux.Handle(PathPrefix+"/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, server.NewBadRequestError("unsupported proxy route"))
	}))
}

func (p *Proxy) serveItem(w http.ResponseWriter, r *http.Request) {
	if !p.requireVersion(w, r) {
		return
	}
	acc := p.claims.Resolve(r)
	err := p.gate.AuthorizeItem(r.Context(), r.Method, r.PathValue("driveId"), r.PathValue("itemId"), acc)
	if err != nil {
		p.deny(w, r, err)
		return
	}
	p.forward(w, r)
}

func (p *Proxy) serveDrive(w http.ResponseWriter, r *http.Request) {
	if !p.requireVersion(w, r) {
		return
	}
	if err := p.gate.AuthorizeDrive(r.Method, r.PathValue("driveId")); err != nil {
		p.deny(w, r, err)
		return
	}
	p.forward(w, r)
}

func (p *Proxy) requireVersion(w http.ResponseWriter, r *http.Request) bool {
	if strings.TrimSpace(r.PathValue("version")) == "" {
		server.WriteError(w, server.NewBadRequestError("version is required"))
		return false
	}
	return true
}

// deny writes the generic denial. The detailed reason stays in the log.
func (p *Proxy) deny(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrBadRequest) {
		p.logger.Debug("proxy request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
		server.WriteError(w, server.NewBadRequestError("malformed request parameters"))
		return
	}
	p.logger.Info("proxy request denied", "method", r.Method, "path", r.URL.Path, "error", err)
	server.WriteError(w, server.NewNotAuthorisedError())
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) {
	token, err := p.tokens.AccessToken(r.Context())
	if err != nil {
		p.logger.Error("acquiring service token failed", "error", err)
		server.WriteJSON(w, http.StatusBadGateway, map[string]bool{"ok": false})
		return
	}
	ctx := context.WithValue(r.Context(), tokenKey{}, token)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// rewrite points the request at Graph and swaps the caller's credentials for
// the service token.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	path := strings.TrimPrefix(pr.In.URL.Path, PathPrefix)
	pr.Out.URL.Scheme = p.upstream.Scheme
	pr.Out.URL.Host = p.upstream.Host
	pr.Out.URL.Path = strings.TrimSuffix(p.upstream.Path, "/") + path
	pr.Out.URL.RawPath = ""
	pr.Out.Host = p.upstream.Host

	pr.Out.Header.Del("Cookie")
	if token, ok := pr.In.Context().Value(tokenKey{}).(string); ok {
		pr.Out.Header.Set("Authorization", "Bearer "+token)
	} else {
		pr.Out.Header.Del("Authorization")
	}
}

func modifyResponse(res *http.Response) error {
	res.Header.Del("Strict-Transport-Security")
	res.Header.Del("Content-Security-Policy")
	res.Header.Set("Cache-Control", "max-age=30")
	return nil
}

func (p *Proxy) upstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		p.logger.Debug("client went away during proxy request", "path", r.URL.Path)
		return
	}
	p.logger.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	server.WriteJSON(w, http.StatusBadGateway, map[string]bool{"ok": false})
}

// Package webhook receives change notifications and runs at most one delta
// pass per resource key at a time. The notifier always gets a 200.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
)

// DefaultKey is the single slot used when notifications are not told apart.
const DefaultKey = "default"

const (
	defaultTimeout = 5 * time.Minute
	maxBodySize    = 1 << 20
)

// Processor runs one delta pass for a resource.
type Processor interface {
	Process(ctx context.Context, resource string) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, resource string) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, resource string) error { return f(ctx, resource) }

// StateVerifier checks the clientState a notification carried for resource.
type StateVerifier interface {
	VerifyClientState(ctx context.Context, resource, clientState string) error
}

// StateVerifierFunc adapts a function to StateVerifier.
type StateVerifierFunc func(ctx context.Context, resource, clientState string) error

// VerifyClientState calls f.
func (f StateVerifierFunc) VerifyClientState(ctx context.Context, resource, clientState string) error {
	return f(ctx, resource, clientState)
}

// Notification is the body Graph posts to the webhook.
type Notification struct {
	Value []struct {
		SubscriptionID string `json:"subscriptionId"`
		ClientState    string `json:"clientState"`
		Resource       string `json:"resource"`
	} `json:"value"`
}

// Coalescer accepts notifications and runs the processor in the background.
type Coalescer struct {
	proc    Processor
	verify  StateVerifier
	key     func(resource string) string
	timeout time.Duration
	base    context.Context
	logger  logger.Logger

	mu    sync.Mutex
	slots map[string]struct{}
	wg    sync.WaitGroup
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithKeyFunc maps a resource to its slot. The default puts every resource in
// DefaultKey.
func WithKeyFunc(fn func(resource string) string) Option {
	return func(c *Coalescer) { c.key = fn }
}

// WithStateVerifier checks the clientState of posted notifications before the
// pass runs. Notifications that fail the check are logged and dropped.
func WithStateVerifier(v StateVerifier) Option {
	return func(c *Coalescer) { c.verify = v }
}

// WithTimeout bounds each background pass.
func WithTimeout(d time.Duration) Option {
	return func(c *Coalescer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseContext sets the context background passes derive from, so that
// shutdown can cancel them.
func WithBaseContext(ctx context.Context) Option {
	return func(c *Coalescer) { c.base = ctx }
}

// New creates a Coalescer.
func New(proc Processor, log logger.Logger, opts ...Option) *Coalescer {
	c := &Coalescer{
		proc:    proc,
		key:     func(string) string { return DefaultKey },
		timeout: defaultTimeout,
		base:    context.Background(),
		logger:  log,
		slots:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServeHTTP handles POST /webhook.
func (c *Coalescer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, token)
		return
	}
	defer w.WriteHeader(http.StatusOK)

	var n Notification
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&n); err != nil {
		c.logger.Warn("ignoring malformed webhook notification", "error", err)
		return
	}
	if len(n.Value) == 0 || n.Value[0].Resource == "" {
		c.logger.Warn("ignoring webhook notification without resource")
		return
	}
	// Only the first notification is acted on; the pass reads every change
	// for that resource anyway.
	first := n.Value[0]
	c.start(first.Resource, &first.ClientState)
}

// Notify starts a pass for resource unless its slot is already busy. It
// reports whether a pass was started. No clientState check is made.
func (c *Coalescer) Notify(resource string) bool {
	return c.start(resource, nil)
}

func (c *Coalescer) start(resource string, clientState *string) bool {
	key := c.key(resource)

	c.mu.Lock()
	if _, busy := c.slots[key]; busy {
		c.mu.Unlock()
		c.logger.Debug("webhook pass already pending", "key", key, "resource", resource)
		return false
	}
	c.slots[key] = struct{}{}
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(key, resource, clientState)
	return true
}

func (c *Coalescer) run(key, resource string, clientState *string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("webhook pass panicked", "resource", resource, "panic", fmt.Sprint(r))
		}
		c.mu.Lock()
		delete(c.slots, key)
		c.mu.Unlock()
		c.wg.Done()
	}()

	ctx, cancel := context.WithTimeout(c.base, c.timeout)
	defer cancel()

	if c.verify != nil && clientState != nil {
		if err := c.verify.VerifyClientState(ctx, resource, *clientState); err != nil {
			c.logger.Warn("ignoring webhook notification", "resource", resource, "error", err)
			return
		}
	}
	if err := c.proc.Process(ctx, resource); err != nil {
		c.logger.Error("webhook pass failed", "resource", resource, "error", err, "duration", time.Since(start))
		return
	}
	c.logger.Info("webhook pass complete", "resource", resource, "duration", time.Since(start))
}

// Pending reports whether the slot of resource is busy.
func (c *Coalescer) Pending(resource string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.slots[c.key(resource)]
	return busy
}

// Wait blocks until every started pass has finished.
func (c *Coalescer) Wait() {
	c.wg.Wait()
}

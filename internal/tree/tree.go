// Package tree answers "is this drive item inside one of these folders?" by
// walking parent links. Parent references are fetched lazily from the drive and
// memoised in a process-wide node cache shared by every caller.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/onedrive-gateway/internal/cache"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
)

// ErrFolderResolution is returned when a node on the walk could not be fetched.
// Callers must treat it as "cannot verify" and deny.
var ErrFolderResolution = errors.New("folder resolution failed")

// Unbounded walks up to the drive root.
const Unbounded = -1

// Node mirrors a remote item's parent reference at the time it was fetched.
// Parent is empty for the drive root.
type Node struct {
	ID     string
	Parent string
}

// RemoteTree fetches the parent of a single item.
type RemoteTree interface {
	Parent(ctx context.Context, id string) (string, error)
}

// Resolver walks ancestry chains against a RemoteTree.
type Resolver struct {
	remote RemoteTree
	nodes  *cache.Cache[string, Node]
	group  singleflight.Group
	logger logger.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	ttl    time.Duration
	clock  func() time.Time
	logger logger.Logger
}

// WithCacheTTL bounds how long a fetched parent reference is trusted.
// Zero, the default, trusts it for the life of the process.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(o *resolverOptions) { o.ttl = ttl }
}

// WithClock replaces time.Now for cache expiry.
func WithClock(now func() time.Time) ResolverOption {
	return func(o *resolverOptions) { o.clock = now }
}

// WithLogger sets the resolver's logger.
func WithLogger(l logger.Logger) ResolverOption {
	return func(o *resolverOptions) { o.logger = l }
}

// NewResolver creates a Resolver with an empty node cache.
func NewResolver(remote RemoteTree, opts ...ResolverOption) *Resolver {
	o := resolverOptions{clock: time.Now, logger: logger.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Resolver{
		remote: remote,
		nodes:  cache.New[string, Node](cache.WithTTL(o.ttl), cache.WithClock(o.clock)),
		logger: o.logger,
	}
}

// LookupOption adjusts a single IsInFolder call.
type LookupOption func(*lookup)

type lookup struct {
	depth int
}

// WithDepth bounds the walk. Depth 0 only accepts immediate children of the
// folder set, depth 1 also accepts grandchildren, and so on.
func WithDepth(depth int) LookupOption {
	return func(l *lookup) { l.depth = depth }
}

// Normalize strips the ':' characters Graph appends to path-addressed ids.
func Normalize(id string) string {
	return strings.ReplaceAll(id, ":", "")
}

// IsInFolder reports whether id is one of folderIDs or lies beneath one of them.
func (r *Resolver) IsInFolder(ctx context.Context, id string, folderIDs []string, opts ...LookupOption) (bool, error) {
	l := lookup{depth: Unbounded}
	for _, opt := range opts {
		opt(&l)
	}

	folders := make(map[string]struct{}, len(folderIDs))
	for _, f := range folderIDs {
		if f = Normalize(f); f != "" {
			folders[f] = struct{}{}
		}
	}

	current := Normalize(id)
	if _, ok := folders[current]; ok {
		return true, nil
	}
	if len(folders) == 0 || current == "" {
		return false, nil
	}

	visited := map[string]struct{}{current: {}}
	for hops := 0; ; hops++ {
		node, err := r.node(ctx, current)
		if err != nil {
			return false, fmt.Errorf("%w: %s: %w", ErrFolderResolution, current, err)
		}
		if node.Parent == "" {
			return false, nil
		}
		if _, ok := folders[node.Parent]; ok {
			return true, nil
		}
		if l.depth != Unbounded && hops >= l.depth {
			return false, nil
		}
		if _, seen := visited[node.Parent]; seen {
			r.logger.Warnf("cycle in parent chain of '%s' at '%s'", id, node.Parent)
			return false, nil
		}
		visited[node.Parent] = struct{}{}
		current = node.Parent
	}
}

// node returns the cached node for id, fetching it once if absent. Concurrent
// misses for the same id share one remote call.
func (r *Resolver) node(ctx context.Context, id string) (Node, error) {
	if n, ok := r.nodes.Get(id); ok {
		return n, nil
	}
	v, err, _ := r.group.Do(id, func() (any, error) {
		parent, err := r.remote.Parent(ctx, id)
		if err != nil {
			return Node{}, err
		}
		n := Node{ID: id, Parent: Normalize(parent)}
		r.nodes.Set(id, n)
		r.logger.Debugf("cached node '%s' with parent '%s'", id, n.Parent)
		return n, nil
	})
	if err != nil {
		return Node{}, err
	}
	return v.(Node), nil
}

// Cached returns the cached node for id, if any.
func (r *Resolver) Cached(id string) (Node, bool) {
	return r.nodes.Get(Normalize(id))
}

// CacheSize reports the number of cached nodes.
func (r *Resolver) CacheSize() int {
	return r.nodes.Len()
}

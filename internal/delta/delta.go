// Package delta pages through a drive's change feed from the checkpoint kept
// in the registration document, filters out the gateway's own writes and turns
// the remaining changes into typed events.
package delta

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// SystemConfigurationName is the folder holding the gateway's own files.
const SystemConfigurationName = "System configuration (readonly)"

var (
	// ErrMissingCheckpoint means the feed ended without a next or delta link.
	ErrMissingCheckpoint = errors.New("delta feed returned no checkpoint")
	// ErrMalformedChangeRecord means a change lacks the fields needed to classify it.
	ErrMalformedChangeRecord = errors.New("malformed change record")
	// ErrInvalidResource means the resource is not a drive root.
	ErrInvalidResource = errors.New("invalid resource")
	// ErrDriveNotApproved means the resource names a drive the gateway does not manage.
	ErrDriveNotApproved = errors.New("drive is not approved")
)

var driveResource = regexp.MustCompile(`^/?drives/([^/\s]+)/root/?$`)

// DriveFromResource extracts the drive id from "/drives/{id}/root".
func DriveFromResource(resource string) (string, error) {
	m := driveResource.FindStringSubmatch(resource)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidResource, resource)
	}
	return m[1], nil
}

// Feed is the slice of the Graph client that reads the change feed.
type Feed interface {
	DeltaURL(resource, token string) string
	GetDeltaPage(ctx context.Context, pageURL string) (onedrive.DeltaResponse, error)
}

// Checkpoints reads and advances the registration of one resource.
type Checkpoints interface {
	Get(ctx context.Context, resource string) (*registration.Registration, error)
	Update(ctx context.Context, resource, token string, lastChecked time.Time) (registration.Registration, error)
	FileID() string
}

// StoreFactory returns the checkpoint store living in a drive.
type StoreFactory func(driveID string) Checkpoints

// PageObserver is told about every page fetched.
type PageObserver func(page, items int)

// Synchronizer reads the change feed for a resource.
type Synchronizer struct {
	feed   Feed
	stores StoreFactory
	now    func() time.Time
	pages  PageObserver
	allow  func(driveID string) bool
	logger logger.Logger
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithPageObserver installs a callback invoked after each page.
func WithPageObserver(fn PageObserver) Option {
	return func(s *Synchronizer) { s.pages = fn }
}

// WithDriveFilter restricts syncing to drives allow accepts. Resources arrive
// from unauthenticated notifications, so they are checked before any Graph call.
func WithDriveFilter(allow func(driveID string) bool) Option {
	return func(s *Synchronizer) { s.allow = allow }
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(feed Feed, stores StoreFactory, log logger.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		feed:   feed,
		stores: stores,
		now:    time.Now,
		pages:  func(int, int) {},
		allow:  func(string) bool { return true },
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Batch is the outcome of one pass over the feed.
type Batch struct {
	Resource string
	// Changes excludes the gateway's own writes.
	Changes []onedrive.DriveItem
	// LastChecked is the checkpoint time the changes are classified against.
	LastChecked time.Time
	Token       string
	Persisted   bool
}

// Sync fetches every change since the stored checkpoint. The new checkpoint is
// written only when at least one change survives filtering.
func (s *Synchronizer) Sync(ctx context.Context, resource string) (Batch, error) {
	driveID, err := DriveFromResource(resource)
	if err != nil {
		return Batch{}, err
	}
	if !s.allow(driveID) {
		return Batch{}, fmt.Errorf("%w: %s", ErrDriveNotApproved, driveID)
	}
	store := s.stores(driveID)

	reg, err := store.Get(ctx, resource)
	if err != nil {
		return Batch{}, err
	}
	if reg == nil {
		return Batch{}, fmt.Errorf("%w: %s", registration.ErrRegistrationNotFound, resource)
	}

	lastChecked := s.now()
	if reg.LastChecked != nil {
		lastChecked = *reg.LastChecked
	}
	token := reg.Token
	if token == "" {
		token = onedrive.InitialDeltaToken
	}

	var all []onedrive.DriveItem
	pageURL := s.feed.DeltaURL(resource, token)
	for page := 1; ; page++ {
		res, err := s.feed.GetDeltaPage(ctx, pageURL)
		if err != nil {
			return Batch{}, fmt.Errorf("fetching delta page %d: %w", page, err)
		}
		all = append(all, res.Value...)
		s.pages(page, len(res.Value))

		if res.NextLink != "" {
			if token, err = onedrive.TokenFromLink(res.NextLink); err != nil {
				return Batch{}, err
			}
			pageURL = res.NextLink
			continue
		}
		if res.DeltaLink == "" {
			return Batch{}, fmt.Errorf("%w: page %d of %s", ErrMissingCheckpoint, page, resource)
		}
		if token, err = onedrive.TokenFromLink(res.DeltaLink); err != nil {
			return Batch{}, err
		}
		break
	}

	changes := make([]onedrive.DriveItem, 0, len(all))
	for _, item := range all {
		if !IsOperational(item, store.FileID()) {
			changes = append(changes, item)
		}
	}
	s.logger.Debug("delta pass complete", "resource", resource, "raw", len(all), "changes", len(changes))

	batch := Batch{Resource: resource, Changes: changes, LastChecked: lastChecked, Token: token}
	if len(changes) == 0 {
		return batch, nil
	}
	if _, err := store.Update(ctx, resource, token, s.now()); err != nil {
		return Batch{}, fmt.Errorf("saving checkpoint: %w", err)
	}
	batch.Persisted = true
	return batch, nil
}

// IsOperational reports whether a change is the drive root, the system
// configuration folder or the registration file itself.
func IsOperational(item onedrive.DriveItem, registrationFileID string) bool {
	return item.Root != nil ||
		item.Name == SystemConfigurationName ||
		(registrationFileID != "" && item.ID == registrationFileID)
}

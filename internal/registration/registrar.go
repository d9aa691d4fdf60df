package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// Subscriptions is the slice of the Graph client the registrar needs.
type Subscriptions interface {
	CreateSubscription(ctx context.Context, sub onedrive.Subscription) (onedrive.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, expiration time.Time) (onedrive.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
}

// Registrar keeps a Graph subscription and its registration in step.
type Registrar struct {
	subs            Subscriptions
	store           *Store
	notificationURL string
	lifetime        time.Duration
	now             func() time.Time
	logger          logger.Logger
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithLifetime sets how far ahead each renewal pushes the expiry.
func WithLifetime(d time.Duration) RegistrarOption {
	return func(r *Registrar) {
		if d > 0 {
			r.lifetime = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RegistrarOption {
	return func(r *Registrar) { r.now = now }
}

// NewRegistrar creates a Registrar that subscribes notificationURL.
func NewRegistrar(subs Subscriptions, store *Store, notificationURL string, log logger.Logger, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		subs:            subs,
		store:           store,
		notificationURL: notificationURL,
		lifetime:        onedrive.MaxDriveSubscriptionLifetime,
		now:             time.Now,
		logger:          log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOrRefresh extends an existing subscription and its registration, or
// creates both. A subscription Graph has already dropped is replaced and the
// registration rebound to it, keeping its checkpoint.
func (r *Registrar) CreateOrRefresh(ctx context.Context, resource string) (Registration, error) {
	existing, err := r.store.Get(ctx, resource)
	if err != nil {
		return Registration{}, err
	}
	expiration := r.now().Add(r.lifetime).UTC()

	if existing == nil {
		r.logger.Info("creating subscription", "resource", resource)
		sub, err := r.subscribe(ctx, resource, expiration)
		if err != nil {
			return Registration{}, err
		}
		return r.store.Create(ctx, Registration{
			RegistrationID:     sub.ID,
			DriveID:            r.store.DriveID(),
			Resource:           resource,
			Token:              onedrive.InitialDeltaToken,
			Nonce:              sub.ClientState,
			ExpirationDateTime: expirationOf(sub, expiration),
		})
	}

	r.logger.Info("refreshing subscription", "resource", resource, "subscription", existing.RegistrationID)
	sub, err := r.subs.UpdateSubscription(ctx, existing.RegistrationID, expiration)
	if errors.Is(err, onedrive.ErrResourceNotFound) {
		r.logger.Warn("subscription no longer exists, creating a replacement", "resource", resource, "subscription", existing.RegistrationID)
		sub, err = r.subscribe(ctx, resource, expiration)
		if err != nil {
			return Registration{}, err
		}
		return r.store.Rebind(ctx, resource, sub.ID, sub.ClientState, expirationOf(sub, expiration))
	}
	if err != nil {
		return Registration{}, fmt.Errorf("extending subscription: %w", err)
	}
	return r.store.Refresh(ctx, resource, expirationOf(sub, expiration))
}

// Remove deletes the subscription and its registration.
func (r *Registrar) Remove(ctx context.Context, resource string) error {
	existing, err := r.store.Get(ctx, resource)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrRegistrationNotFound, resource)
	}
	if err := r.subs.DeleteSubscription(ctx, existing.RegistrationID); err != nil && !errors.Is(err, onedrive.ErrResourceNotFound) {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return r.store.Delete(ctx, resource)
}

func (r *Registrar) subscribe(ctx context.Context, resource string, expiration time.Time) (onedrive.Subscription, error) {
	sub, err := r.subs.CreateSubscription(ctx, onedrive.Subscription{
		ChangeType:         "updated",
		NotificationURL:    r.notificationURL,
		Resource:           resource,
		ExpirationDateTime: expiration,
		ClientState:        uuid.NewString(),
	})
	if err != nil {
		return onedrive.Subscription{}, fmt.Errorf("creating subscription: %w", err)
	}
	if sub.ID == "" {
		return onedrive.Subscription{}, errors.New("no subscription id returned from subscription creation")
	}
	if sub.ClientState == "" {
		return onedrive.Subscription{}, errors.New("no client state returned from subscription creation")
	}
	return sub, nil
}

// expirationOf prefers the expiry Graph accepted over the one requested.
func expirationOf(sub onedrive.Subscription, requested time.Time) time.Time {
	if sub.ExpirationDateTime.IsZero() {
		return requested
	}
	return sub.ExpirationDateTime.UTC()
}

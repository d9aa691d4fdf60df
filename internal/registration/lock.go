package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// ErrCheckedOut means another worker holds the checkout; the caller retreats.
var ErrCheckedOut = errors.New("registration file is checked out by another worker")

const defaultCheckInTimeout = 30 * time.Second

// CheckoutClient is the slice of the Graph client the lock needs.
type CheckoutClient interface {
	GetDriveItemWithListItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	CheckOut(ctx context.Context, driveID, itemID string) error
	CheckIn(ctx context.Context, driveID, itemID, comment string) error
}

// Locker is an advisory, non-blocking lock over the registration file built on
// the drive's checkout. Competing workers retreat instead of waiting.
type Locker struct {
	client         CheckoutClient
	driveID        string
	fileID         string
	checkInTimeout time.Duration
	logger         logger.Logger
}

// NewLocker creates a Locker for one file.
func NewLocker(client CheckoutClient, driveID, fileID string, log logger.Logger) *Locker {
	return &Locker{
		client:         client,
		driveID:        driveID,
		fileID:         fileID,
		checkInTimeout: defaultCheckInTimeout,
		logger:         log,
	}
}

// HasFileBeenCheckedOut reports whether any user holds the checkout.
func (l *Locker) HasFileBeenCheckedOut(ctx context.Context) (bool, error) {
	item, err := l.client.GetDriveItemWithListItem(ctx, l.driveID, l.fileID)
	if err != nil {
		return false, fmt.Errorf("reading checkout state: %w", err)
	}
	return item.CheckoutUserID() != "", nil
}

// CheckOutFile takes the checkout.
func (l *Locker) CheckOutFile(ctx context.Context) error {
	return l.client.CheckOut(ctx, l.driveID, l.fileID)
}

// CheckInFile releases the checkout.
func (l *Locker) CheckInFile(ctx context.Context) error {
	return l.client.CheckIn(ctx, l.driveID, l.fileID, "")
}

// WithCheckout runs fn while holding the checkout. It returns ErrCheckedOut
// without running fn when another worker holds it or wins the race to check
// it out. Once the checkout is held, check-in runs on every exit path,
// cancellation included, on a context of its own; its failure is logged and
// swallowed. A checkout interrupted by the context may still have landed, so
// it is checked in as well. A refused checkout is never checked in, since all
// workers share one identity and the check-in would release the winner.
func (l *Locker) WithCheckout(ctx context.Context, fn func(ctx context.Context) error) error {
	checkedOut, err := l.HasFileBeenCheckedOut(ctx)
	if err != nil {
		return err
	}
	if checkedOut {
		return ErrCheckedOut
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.CheckOutFile(ctx); err != nil {
		if ctx.Err() != nil {
			l.releaseDetached(ctx)
		}
		if errors.Is(err, onedrive.ErrConflict) {
			return fmt.Errorf("%w: %w", ErrCheckedOut, err)
		}
		return fmt.Errorf("checking out registration file: %w", err)
	}
	defer l.releaseDetached(ctx)
	l.logger.Debugf("registration file '%s' checked out", l.fileID)
	return fn(ctx)
}

func (l *Locker) releaseDetached(ctx context.Context) {
	checkInCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.checkInTimeout)
	defer cancel()
	if err := l.CheckInFile(checkInCtx); err != nil {
		l.logger.Warn("registration file could not be checked in, possibly never checked out", "file", l.fileID, "error", err)
		return
	}
	l.logger.Debugf("registration file '%s' checked in", l.fileID)
}

package delta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// EventType names a classified change.
type EventType string

const (
	FileCreated   EventType = "File.Created"
	FileUpdated   EventType = "File.Updated"
	FileDeleted   EventType = "File.Deleted"
	FolderCreated EventType = "Folder.Created"
	FolderUpdated EventType = "Folder.Updated"
	FolderDeleted EventType = "Folder.Deleted"
)

// Event is one classified change.
type Event struct {
	Type EventType
	Item onedrive.DriveItem
}

// Handler reacts to events.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Classify turns a change into an event relative to the previous checkpoint.
// Items that are neither files nor folders report ok == false.
func Classify(item onedrive.DriveItem, lastChecked time.Time) (ev Event, ok bool, err error) {
	if item.Deleted != nil {
		if item.File != nil {
			return Event{Type: FileDeleted, Item: item}, true, nil
		}
		return Event{Type: FolderDeleted, Item: item}, true, nil
	}
	if item.CreatedDateTime == nil {
		return Event{}, false, fmt.Errorf("%w: item %s has no createdDateTime", ErrMalformedChangeRecord, item.ID)
	}
	created := item.CreatedDateTime.After(lastChecked)

	switch {
	case item.Folder != nil && created:
		return Event{Type: FolderCreated, Item: item}, true, nil
	case item.Folder != nil:
		return Event{Type: FolderUpdated, Item: item}, true, nil
	case item.File != nil && created:
		return Event{Type: FileCreated, Item: item}, true, nil
	case item.File != nil:
		return Event{Type: FileUpdated, Item: item}, true, nil
	}
	return Event{}, false, nil
}

// Events classifies a batch item by item. Malformed records are skipped and
// reported in the joined error; every other change is still returned.
func Events(b Batch) ([]Event, error) {
	events := make([]Event, 0, len(b.Changes))
	var errs []error
	for _, item := range b.Changes {
		ev, ok, err := Classify(item, b.LastChecked)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			events = append(events, ev)
		}
	}
	return events, errors.Join(errs...)
}

// Dispatch runs h over events concurrently. A failing handler does not stop
// the others; all failures are joined once every handler has finished.
func Dispatch(ctx context.Context, h Handler, events []Event) error {
	var g errgroup.Group
	g.SetLimit(8)
	errs := make([]error, len(events))
	for i, ev := range events {
		g.Go(func() error {
			if err := h.Handle(ctx, ev); err != nil {
				errs[i] = fmt.Errorf("%s %s: %w", ev.Type, ev.Item.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Process syncs resource and hands every classified change to h. Malformed
// records fail the pass but do not hold back the valid changes beside them,
// whose checkpoint has already advanced.
func (s *Synchronizer) Process(ctx context.Context, resource string, h Handler) error {
	batch, err := s.Sync(ctx, resource)
	if err != nil {
		return err
	}
	events, classifyErr := Events(batch)
	if classifyErr != nil {
		s.logger.Error("skipping malformed change records", "resource", resource, "error", classifyErr)
	}
	if len(events) == 0 {
		return classifyErr
	}
	s.logger.Info("dispatching change events", "resource", resource, "events", len(events))
	return errors.Join(classifyErr, Dispatch(ctx, h, events))
}

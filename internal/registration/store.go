// Package registration persists webhook subscription state as a JSON document
// stored in a file on the drive itself. The drive is the only database: every
// mutation is a full read-modify-write of that document, made conditional on
// the eTag it was read with.
package registration

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

var (
	// ErrRegistrationNotFound is returned when no registration matches a resource.
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationExists is returned by Create for an already registered resource.
	ErrRegistrationExists = errors.New("registration already exists")
	// ErrConcurrentModification is returned when the document changed between
	// read and write.
	ErrConcurrentModification = errors.New("registration document modified concurrently")
	// ErrClientStateMismatch means a notification did not carry the nonce
	// stored for its resource.
	ErrClientStateMismatch = errors.New("notification clientState does not match registration")
)

// Registration is the persisted state of one change subscription.
type Registration struct {
	RegistrationID     string     `json:"registrationId"`
	DriveID            string     `json:"driveId"`
	Resource           string     `json:"resource"`
	Token              string     `json:"token"`
	Nonce              string     `json:"nonce"`
	ExpirationDateTime time.Time  `json:"expirationDateTime"`
	LastChecked        *time.Time `json:"lastChecked,omitempty"`
}

// Document is the content of the registration file.
type Document struct {
	Registrations []Registration `json:"registrations"`
}

func (d *Document) index(resource string) int {
	for i, r := range d.Registrations {
		if r.Resource == resource {
			return i
		}
	}
	return -1
}

// DriveFiles is the slice of the Graph client the store needs.
type DriveFiles interface {
	GetDriveItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	GetItemContent(ctx context.Context, driveID, itemID string) ([]byte, error)
	PutItemContent(ctx context.Context, driveID, itemID, contentType string, data []byte, ifMatch string) (onedrive.DriveItem, error)
}

// Store reads and writes the registration document of one (drive, file) pair.
type Store struct {
	files   DriveFiles
	driveID string
	fileID  string
	logger  logger.Logger
}

// NewStore creates a Store.
func NewStore(files DriveFiles, driveID, fileID string, log logger.Logger) *Store {
	return &Store{files: files, driveID: driveID, fileID: fileID, logger: log}
}

// DriveID returns the drive holding the document.
func (s *Store) DriveID() string { return s.driveID }

// FileID returns the id of the document file.
func (s *Store) FileID() string { return s.fileID }

// Load reads the document and the eTag it was read at. An empty file is an
// empty document.
func (s *Store) Load(ctx context.Context) (Document, string, error) {
	item, err := s.files.GetDriveItem(ctx, s.driveID, s.fileID)
	if err != nil {
		return Document{}, "", fmt.Errorf("reading registration file metadata: %w", err)
	}
	raw, err := s.files.GetItemContent(ctx, s.driveID, s.fileID)
	if err != nil {
		return Document{}, "", fmt.Errorf("reading registration file: %w", err)
	}

	var doc Document
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return Document{}, "", fmt.Errorf("%w: registration document: %w", onedrive.ErrDecodingFailed, err)
		}
	}
	return doc, item.ETag, nil
}

// Get returns the registration for resource, or nil if there is none.
func (s *Store) Get(ctx context.Context, resource string) (*Registration, error) {
	doc, _, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if i := doc.index(resource); i >= 0 {
		reg := doc.Registrations[i]
		return &reg, nil
	}
	return nil, nil
}

// VerifyClientState compares clientState with the nonce stored for resource.
// Registrations written without a nonce accept any value.
func (s *Store) VerifyClientState(ctx context.Context, resource, clientState string) error {
	reg, err := s.Get(ctx, resource)
	if err != nil {
		return err
	}
	if reg == nil {
		return fmt.Errorf("%w: %s", ErrRegistrationNotFound, resource)
	}
	if reg.Nonce == "" || subtle.ConstantTimeCompare([]byte(reg.Nonce), []byte(clientState)) == 1 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrClientStateMismatch, resource)
}

// Create appends a registration. A missing nonce is generated and a missing
// token starts at the current state of the feed.
func (s *Store) Create(ctx context.Context, reg Registration) (Registration, error) {
	if reg.Nonce == "" {
		reg.Nonce = uuid.NewString()
	}
	if reg.Token == "" {
		reg.Token = onedrive.InitialDeltaToken
	}
	if reg.DriveID == "" {
		reg.DriveID = s.driveID
	}
	return s.mutate(ctx, reg.Resource, func(doc *Document, i int) (Registration, error) {
		if i >= 0 {
			return Registration{}, fmt.Errorf("%w: %s", ErrRegistrationExists, reg.Resource)
		}
		doc.Registrations = append(doc.Registrations, reg)
		return reg, nil
	})
}

// Update stores a new delta checkpoint.
func (s *Store) Update(ctx context.Context, resource, token string, lastChecked time.Time) (Registration, error) {
	return s.mutate(ctx, resource, func(doc *Document, i int) (Registration, error) {
		if i < 0 {
			return Registration{}, fmt.Errorf("%w: %s", ErrRegistrationNotFound, resource)
		}
		checked := lastChecked.UTC()
		doc.Registrations[i].Token = token
		doc.Registrations[i].LastChecked = &checked
		return doc.Registrations[i], nil
	})
}

// Refresh extends the subscription expiry only.
func (s *Store) Refresh(ctx context.Context, resource string, expiration time.Time) (Registration, error) {
	return s.mutate(ctx, resource, func(doc *Document, i int) (Registration, error) {
		if i < 0 {
			return Registration{}, fmt.Errorf("%w: %s", ErrRegistrationNotFound, resource)
		}
		doc.Registrations[i].ExpirationDateTime = expiration.UTC()
		return doc.Registrations[i], nil
	})
}

// Rebind points a registration at a replacement subscription. The checkpoint
// is kept so no changes are lost.
func (s *Store) Rebind(ctx context.Context, resource, subscriptionID, nonce string, expiration time.Time) (Registration, error) {
	return s.mutate(ctx, resource, func(doc *Document, i int) (Registration, error) {
		if i < 0 {
			return Registration{}, fmt.Errorf("%w: %s", ErrRegistrationNotFound, resource)
		}
		doc.Registrations[i].RegistrationID = subscriptionID
		doc.Registrations[i].Nonce = nonce
		doc.Registrations[i].ExpirationDateTime = expiration.UTC()
		return doc.Registrations[i], nil
	})
}

// Delete removes the registration for resource. Deleting an absent
// registration is not an error.
func (s *Store) Delete(ctx context.Context, resource string) error {
	_, err := s.mutate(ctx, resource, func(doc *Document, i int) (Registration, error) {
		if i >= 0 {
			doc.Registrations = append(doc.Registrations[:i], doc.Registrations[i+1:]...)
		}
		return Registration{}, nil
	})
	return err
}

// mutate loads the document, applies fn to it and writes it back with If-Match.
func (s *Store) mutate(ctx context.Context, resource string, fn func(doc *Document, i int) (Registration, error)) (Registration, error) {
	doc, etag, err := s.Load(ctx)
	if err != nil {
		return Registration{}, err
	}
	reg, err := fn(&doc, doc.index(resource))
	if err != nil {
		return Registration{}, err
	}
	if doc.Registrations == nil {
		doc.Registrations = []Registration{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Registration{}, fmt.Errorf("encoding registration document: %w", err)
	}
	if _, err := s.files.PutItemContent(ctx, s.driveID, s.fileID, "application/json", data, etag); err != nil {
		if errors.Is(err, onedrive.ErrPreconditionFailed) {
			return Registration{}, fmt.Errorf("%w: %w", ErrConcurrentModification, err)
		}
		return Registration{}, fmt.Errorf("writing registration file: %w", err)
	}
	s.logger.Debugf("registration document for '%s' written (%d registrations)", resource, len(doc.Registrations))
	return reg, nil
}

// Package gate authorises proxied drive requests. Item requests must target an
// item inside one of the caller's approved folders; drive-level requests are
// governed by the static root read/write flags.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/policy"
	"github.com/tonimelisma/onedrive-gateway/internal/tree"
)

var (
	// ErrNotAuthorised denies a request. The reason is only logged.
	ErrNotAuthorised = errors.New("not authorised")
	// ErrBadRequest rejects malformed route parameters.
	ErrBadRequest = errors.New("bad request")
)

// Access is the kind of access a verb needs.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

// AccessFor maps an HTTP method to the access it needs.
func AccessFor(method string) (Access, error) {
	switch method {
	case http.MethodGet, http.MethodHead:
		return AccessRead, nil
	case http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodPatch:
		return AccessWrite, nil
	}
	return 0, fmt.Errorf("%w: method %s is not proxied", ErrNotAuthorised, method)
}

// Ancestry is the resolver contract the gate depends on.
type Ancestry interface {
	IsInFolder(ctx context.Context, id string, folderIDs []string, opts ...tree.LookupOption) (bool, error)
}

// Gate applies the drive and item access rules.
type Gate struct {
	drives   policy.DriveConfiguration
	ancestry Ancestry
	logger   logger.Logger
}

// New creates a Gate.
func New(drives policy.DriveConfiguration, ancestry Ancestry, log logger.Logger) *Gate {
	return &Gate{drives: drives, ancestry: ancestry, logger: log}
}

// Drives returns the static drive configuration.
func (g *Gate) Drives() policy.DriveConfiguration {
	return g.drives
}

// AuthorizeDriveID rejects drives that are not configured.
func (g *Gate) AuthorizeDriveID(driveID string) error {
	if driveID == "" {
		return fmt.Errorf("%w: drive id is required", ErrBadRequest)
	}
	if !g.drives.AllowsDrive(driveID) {
		return fmt.Errorf("%w: drive %s is not approved", ErrNotAuthorised, driveID)
	}
	return nil
}

// AuthorizeDrive checks a drive-level request against the root flags.
func (g *Gate) AuthorizeDrive(method, driveID string) error {
	if err := g.AuthorizeDriveID(driveID); err != nil {
		return err
	}
	access, err := AccessFor(method)
	if err != nil {
		return err
	}
	if access == AccessRead && !g.drives.Read {
		return fmt.Errorf("%w: root read is disabled", ErrNotAuthorised)
	}
	if access == AccessWrite && !g.drives.Write {
		return fmt.Errorf("%w: root write is disabled", ErrNotAuthorised)
	}
	return nil
}

// AuthorizeItem checks that itemID lies inside one of the folders acc grants
// for the method's access kind. A failed ancestry lookup denies.
func (g *Gate) AuthorizeItem(ctx context.Context, method, driveID, itemID string, acc policy.ItemAccessConfiguration) error {
	if err := g.AuthorizeDriveID(driveID); err != nil {
		return err
	}
	if itemID == "" {
		return fmt.Errorf("%w: item id is required", ErrBadRequest)
	}
	access, err := AccessFor(method)
	if err != nil {
		return err
	}
	folders := acc.Read
	if access == AccessWrite {
		folders = acc.Write
	}
	if len(folders) == 0 {
		return fmt.Errorf("%w: no folders granted for %s", ErrNotAuthorised, method)
	}

	ok, err := g.ancestry.IsInFolder(ctx, itemID, folders)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthorised, err)
	}
	if !ok {
		return fmt.Errorf("%w: item %s is outside the granted folders", ErrNotAuthorised, itemID)
	}
	return nil
}

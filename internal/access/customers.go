package access

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/onedrive-gateway/internal/cache"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/sidecar"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// CustomerDirectory reads customer folders and their member lists.
type CustomerDirectory interface {
	ListChildren(ctx context.Context, driveID, folderID string) ([]onedrive.DriveItem, error)
	GetChildContent(ctx context.Context, driveID, parentID, name string) ([]byte, error)
}

// AccessCache maps member emails to the customer folders that list them. It is
// grown incrementally from every folder's Users document and never shrinks
// within an entry's lifetime.
type AccessCache struct {
	dir            CustomerDirectory
	driveID        string
	folderID       string
	entries        *cache.Cache[string, []string]
	mu             sync.Mutex
	group          singleflight.Group
	refreshTimeout time.Duration
	logger         logger.Logger
}

// NewAccessCache creates an AccessCache over the customer root folder.
func NewAccessCache(dir CustomerDirectory, driveID, customerFolderID string, log logger.Logger, opts ...cache.Option) *AccessCache {
	return &AccessCache{
		dir:            dir,
		driveID:        driveID,
		folderID:       customerFolderID,
		entries:        cache.New[string, []string](opts...),
		refreshTimeout: time.Minute,
		logger:         log,
	}
}

// AllFolders lists the ids of every customer folder.
func (a *AccessCache) AllFolders(ctx context.Context) ([]string, error) {
	if a.folderID == "" {
		return nil, nil
	}
	children, err := a.dir.ListChildren(ctx, a.driveID, a.folderID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(children))
	for _, c := range children {
		if c.IsFolder() {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// FoldersFor returns the customer folders that list email. Every call starts a
// refresh; a cached answer is returned without waiting for it.
func (a *AccessCache) FoldersFor(ctx context.Context, email string) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if a.folderID == "" || email == "" {
		return nil, nil
	}

	done := a.group.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.refreshTimeout)
		defer cancel()
		return nil, a.refresh(refreshCtx)
	})

	if ids, ok := a.entries.Get(email); ok {
		return slices.Clone(ids), nil
	}

	select {
	case res := <-done:
		if res.Err != nil {
			return nil, fmt.Errorf("refreshing access cache: %w", res.Err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	ids, _ := a.entries.Get(email)
	return slices.Clone(ids), nil
}

// refresh reads every customer folder's Users document and merges the emails.
// An unreadable document counts as an empty member list.
func (a *AccessCache) refresh(ctx context.Context) error {
	folders, err := a.AllFolders(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range folders {
		g.Go(func() error {
			raw, err := a.dir.GetChildContent(gctx, a.driveID, id, sidecar.UsersFile)
			if err != nil {
				a.logger.Debug("no readable users document", "folder", id, "error", err)
				return nil
			}
			emails, err := sidecar.ParseEmails(raw)
			if err != nil {
				a.logger.Warn("malformed users document", "folder", id, "error", err)
				return nil
			}
			for _, email := range emails {
				a.add(email, id)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *AccessCache) add(email, folderID string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ids, _ := a.entries.Get(email)
	if slices.Contains(ids, folderID) {
		return
	}
	a.entries.Set(email, append(slices.Clone(ids), folderID))
}

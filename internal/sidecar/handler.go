package sidecar

import (
	"context"
	"errors"

	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/tree"
)

// Ancestry answers folder containment questions.
type Ancestry interface {
	IsInFolder(ctx context.Context, id string, folderIDs []string, opts ...tree.LookupOption) (bool, error)
}

// Folders names the two managed folder roots.
type Folders struct {
	DriveID    string
	CustomerID string
	SharedID   string
}

// Handler places sidecar documents into newly created folders according to
// where they sit under the customer and shared roots.
type Handler struct {
	up       Uploader
	ancestry Ancestry
	folders  Folders
	manifest Manifest
	logger   logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(up Uploader, ancestry Ancestry, folders Folders, manifest Manifest, log logger.Logger) *Handler {
	if manifest == nil {
		manifest = Manifest{}
	}
	return &Handler{up: up, ancestry: ancestry, folders: folders, manifest: manifest, logger: log}
}

// Handle implements delta.Handler. Only folder creations are acted upon.
func (h *Handler) Handle(ctx context.Context, ev delta.Event) error {
	item := ev.Item
	h.logger.Debug("change event", "type", ev.Type, "id", item.ID, "name", item.Name)
	if ev.Type != delta.FolderCreated {
		return nil
	}
	if item.ID == "" {
		return errors.New("folder event without item id")
	}
	if item.ID == h.folders.CustomerID || item.ID == h.folders.SharedID {
		return nil
	}

	if h.folders.CustomerID != "" {
		top, nested, err := h.locate(ctx, item.ID, h.folders.CustomerID)
		if err != nil {
			return err
		}
		if top {
			h.logger.Info("customer folder created", "id", item.ID, "name", item.Name)
			if err := h.upload(ctx, item.ID, UsersFile, h.manifest.Users(item.Name)); err != nil {
				return err
			}
			return h.upload(ctx, item.ID, CustomerFile, h.manifest.Customer())
		}
		if nested {
			h.logger.Info("customer section created", "id", item.ID, "name", item.Name)
			return h.upload(ctx, item.ID, SectionFile, h.manifest.Section())
		}
	}

	if h.folders.SharedID != "" {
		top, nested, err := h.locate(ctx, item.ID, h.folders.SharedID)
		if err != nil {
			return err
		}
		if top {
			h.logger.Info("category folder created", "id", item.ID, "name", item.Name)
			return h.upload(ctx, item.ID, CategoryFile, h.manifest.Category())
		}
		if nested {
			h.logger.Info("shared section created", "id", item.ID, "name", item.Name)
			return h.upload(ctx, item.ID, SectionFile, h.manifest.Section())
		}
	}

	h.logger.Debug("folder is outside the managed folders", "id", item.ID)
	return nil
}

// locate reports whether id is a direct child of root, or deeper below it.
func (h *Handler) locate(ctx context.Context, id, root string) (top, nested bool, err error) {
	top, err = h.ancestry.IsInFolder(ctx, id, []string{root}, tree.WithDepth(0))
	if err != nil || top {
		return top, false, err
	}
	nested, err = h.ancestry.IsInFolder(ctx, id, []string{root})
	return false, nested, err
}

func (h *Handler) upload(ctx context.Context, folderID, name string, doc Document) error {
	return Upload(ctx, h.up, h.folders.DriveID, folderID, name, doc)
}

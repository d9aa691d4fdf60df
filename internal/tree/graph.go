package tree

import (
	"context"

	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// ItemGetter is the slice of the Graph client the tree needs.
type ItemGetter interface {
	GetDriveItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
}

// GraphTree reads parent references from one drive.
type GraphTree struct {
	items   ItemGetter
	driveID string
}

// NewGraphTree creates a RemoteTree over driveID.
func NewGraphTree(items ItemGetter, driveID string) *GraphTree {
	return &GraphTree{items: items, driveID: driveID}
}

// Parent returns the id of the item's parent, or "" for the drive root.
func (g *GraphTree) Parent(ctx context.Context, id string) (string, error) {
	item, err := g.items.GetDriveItem(ctx, g.driveID, id)
	if err != nil {
		return "", err
	}
	if item.Root != nil {
		return "", nil
	}
	return item.ParentID(), nil
}

package app

import (
	"context"
	"time"

	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// SDK is the Graph surface the gateway uses. *onedrive.Client implements it;
// tests substitute fakes.
type SDK interface {
	AccessToken(ctx context.Context) (string, error)

	GetDriveItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	GetDriveItemWithListItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	ListChildren(ctx context.Context, driveID, folderID string) ([]onedrive.DriveItem, error)
	GetItemContent(ctx context.Context, driveID, itemID string) ([]byte, error)
	GetChildContent(ctx context.Context, driveID, parentID, name string) ([]byte, error)
	PutItemContent(ctx context.Context, driveID, itemID, contentType string, data []byte, ifMatch string) (onedrive.DriveItem, error)
	PutChildContent(ctx context.Context, driveID, parentID, name, contentType string, data []byte) (onedrive.DriveItem, error)
	CheckOut(ctx context.Context, driveID, itemID string) error
	CheckIn(ctx context.Context, driveID, itemID, comment string) error

	DeltaURL(resource, token string) string
	GetDeltaPage(ctx context.Context, pageURL string) (onedrive.DeltaResponse, error)

	CreateSubscription(ctx context.Context, sub onedrive.Subscription) (onedrive.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, expiration time.Time) (onedrive.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (onedrive.User, error)
}

var _ SDK = (*onedrive.Client)(nil)

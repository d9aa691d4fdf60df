package cmd

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/config"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// MockSDK is a mock implementation of the SDK interface for testing.
type MockSDK struct {
	GetDriveItemFunc             func(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	GetDriveItemWithListItemFunc func(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error)
	ListChildrenFunc             func(ctx context.Context, driveID, folderID string) ([]onedrive.DriveItem, error)
	GetItemContentFunc           func(ctx context.Context, driveID, itemID string) ([]byte, error)
	GetChildContentFunc          func(ctx context.Context, driveID, parentID, name string) ([]byte, error)
	PutItemContentFunc           func(ctx context.Context, driveID, itemID, contentType string, data []byte, ifMatch string) (onedrive.DriveItem, error)
	PutChildContentFunc          func(ctx context.Context, driveID, parentID, name, contentType string, data []byte) (onedrive.DriveItem, error)
	CheckOutFunc                 func(ctx context.Context, driveID, itemID string) error
	CheckInFunc                  func(ctx context.Context, driveID, itemID, comment string) error
	GetDeltaPageFunc             func(ctx context.Context, pageURL string) (onedrive.DeltaResponse, error)
	CreateSubscriptionFunc       func(ctx context.Context, sub onedrive.Subscription) (onedrive.Subscription, error)
	UpdateSubscriptionFunc       func(ctx context.Context, id string, expiration time.Time) (onedrive.Subscription, error)
	DeleteSubscriptionFunc       func(ctx context.Context, id string) error
	GetUserFunc                  func(ctx context.Context, id string) (onedrive.User, error)
}

var _ app.SDK = (*MockSDK)(nil)

func (m *MockSDK) AccessToken(context.Context) (string, error) { return "test-token", nil }

func (m *MockSDK) GetDriveItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error) {
	if m.GetDriveItemFunc != nil {
		return m.GetDriveItemFunc(ctx, driveID, itemID)
	}
	return onedrive.DriveItem{ID: itemID}, nil
}

func (m *MockSDK) GetDriveItemWithListItem(ctx context.Context, driveID, itemID string) (onedrive.DriveItem, error) {
	if m.GetDriveItemWithListItemFunc != nil {
		return m.GetDriveItemWithListItemFunc(ctx, driveID, itemID)
	}
	return onedrive.DriveItem{ID: itemID}, nil
}

func (m *MockSDK) ListChildren(ctx context.Context, driveID, folderID string) ([]onedrive.DriveItem, error) {
	if m.ListChildrenFunc != nil {
		return m.ListChildrenFunc(ctx, driveID, folderID)
	}
	return nil, nil
}

func (m *MockSDK) GetItemContent(ctx context.Context, driveID, itemID string) ([]byte, error) {
	if m.GetItemContentFunc != nil {
		return m.GetItemContentFunc(ctx, driveID, itemID)
	}
	return nil, nil
}

func (m *MockSDK) GetChildContent(ctx context.Context, driveID, parentID, name string) ([]byte, error) {
	if m.GetChildContentFunc != nil {
		return m.GetChildContentFunc(ctx, driveID, parentID, name)
	}
	return nil, onedrive.ErrResourceNotFound
}

func (m *MockSDK) PutItemContent(ctx context.Context, driveID, itemID, contentType string, data []byte, ifMatch string) (onedrive.DriveItem, error) {
	if m.PutItemContentFunc != nil {
		return m.PutItemContentFunc(ctx, driveID, itemID, contentType, data, ifMatch)
	}
	return onedrive.DriveItem{ID: itemID}, nil
}

func (m *MockSDK) PutChildContent(ctx context.Context, driveID, parentID, name, contentType string, data []byte) (onedrive.DriveItem, error) {
	if m.PutChildContentFunc != nil {
		return m.PutChildContentFunc(ctx, driveID, parentID, name, contentType, data)
	}
	return onedrive.DriveItem{Name: name}, nil
}

func (m *MockSDK) CheckOut(ctx context.Context, driveID, itemID string) error {
	if m.CheckOutFunc != nil {
		return m.CheckOutFunc(ctx, driveID, itemID)
	}
	return nil
}

func (m *MockSDK) CheckIn(ctx context.Context, driveID, itemID, comment string) error {
	if m.CheckInFunc != nil {
		return m.CheckInFunc(ctx, driveID, itemID, comment)
	}
	return nil
}

func (m *MockSDK) DeltaURL(resource, token string) string {
	return "https://graph.test/v1.0" + resource + "/delta?token=" + token
}

func (m *MockSDK) GetDeltaPage(ctx context.Context, pageURL string) (onedrive.DeltaResponse, error) {
	if m.GetDeltaPageFunc != nil {
		return m.GetDeltaPageFunc(ctx, pageURL)
	}
	return onedrive.DeltaResponse{}, errors.New("not implemented")
}

func (m *MockSDK) CreateSubscription(ctx context.Context, sub onedrive.Subscription) (onedrive.Subscription, error) {
	if m.CreateSubscriptionFunc != nil {
		return m.CreateSubscriptionFunc(ctx, sub)
	}
	return onedrive.Subscription{}, errors.New("not implemented")
}

func (m *MockSDK) UpdateSubscription(ctx context.Context, id string, expiration time.Time) (onedrive.Subscription, error) {
	if m.UpdateSubscriptionFunc != nil {
		return m.UpdateSubscriptionFunc(ctx, id, expiration)
	}
	return onedrive.Subscription{}, errors.New("not implemented")
}

func (m *MockSDK) DeleteSubscription(ctx context.Context, id string) error {
	if m.DeleteSubscriptionFunc != nil {
		return m.DeleteSubscriptionFunc(ctx, id)
	}
	return nil
}

func (m *MockSDK) GetUser(ctx context.Context, id string) (onedrive.User, error) {
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, id)
	}
	return onedrive.User{ID: id}, nil
}

// memoryFile backs the registration file with an in-memory document and an
// eTag that changes on every write.
type memoryFile struct {
	content []byte
	version int
}

func (f *memoryFile) install(m *MockSDK, fileID string, items map[string]onedrive.DriveItem) {
	m.GetDriveItemFunc = func(_ context.Context, _, itemID string) (onedrive.DriveItem, error) {
		if itemID == fileID {
			return onedrive.DriveItem{ID: fileID, ETag: f.etag()}, nil
		}
		if item, ok := items[itemID]; ok {
			return item, nil
		}
		return onedrive.DriveItem{}, onedrive.ErrResourceNotFound
	}
	m.GetItemContentFunc = func(context.Context, string, string) ([]byte, error) {
		return f.content, nil
	}
	m.PutItemContentFunc = func(_ context.Context, _, itemID, _ string, data []byte, ifMatch string) (onedrive.DriveItem, error) {
		if ifMatch != f.etag() {
			return onedrive.DriveItem{}, onedrive.ErrPreconditionFailed
		}
		f.content = data
		f.version++
		return onedrive.DriveItem{ID: itemID, ETag: f.etag()}, nil
	}
}

func (f *memoryFile) etag() string {
	return "v" + strconv.Itoa(f.version)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ApprovedDrive = []string{"d1"}
	cfg.Graph = config.Graph{TenantID: "t", ClientID: "c", ClientSecret: "s"}
	return cfg
}

func webhookConfig(lockDir string) *config.Config {
	cfg := testConfig()
	cfg.RegistrationFileID = "reg"
	cfg.PublicHost = "gateway.example.com"
	cfg.CustomerFolderID = "customers"
	cfg.SharedResourceFolderID = "shared"
	cfg.LockDir = lockDir
	return cfg
}

// newTestApp creates an App over the mock SDK.
func newTestApp(cfg *config.Config, mockSDK *MockSDK) *app.App {
	return app.New(cfg, mockSDK, logger.NoopLogger{})
}

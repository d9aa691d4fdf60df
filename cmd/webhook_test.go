package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
	"github.com/tonimelisma/onedrive-gateway/internal/sidecar"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

const rootResource = "/drives/d1/root"

func registrationDoc(t *testing.T, regs ...registration.Registration) []byte {
	t.Helper()
	data, err := json.Marshal(registration.Document{Registrations: regs})
	require.NoError(t, err)
	return data
}

func storedRegistrations(t *testing.T, f *memoryFile) []registration.Registration {
	t.Helper()
	var doc registration.Document
	require.NoError(t, json.Unmarshal(f.content, &doc))
	return doc.Registrations
}

func TestWebhookSyncLogic(t *testing.T) {
	checked := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	created := checked.Add(time.Hour)
	file := &memoryFile{content: registrationDoc(t, registration.Registration{
		RegistrationID: "sub-1", DriveID: "d1", Resource: rootResource, Token: "t0", LastChecked: &checked,
	})}

	mockSDK := &MockSDK{}
	file.install(mockSDK, "reg", map[string]onedrive.DriveItem{
		"acme": {ID: "acme", ParentReference: &onedrive.ItemReference{ID: "customers"}},
	})
	mockSDK.GetDeltaPageFunc = func(_ context.Context, pageURL string) (onedrive.DeltaResponse, error) {
		assert.Contains(t, pageURL, "token=t0")
		return onedrive.DeltaResponse{
			Value: []onedrive.DriveItem{
				{ID: "acme", Name: "Acme", Folder: &onedrive.FolderFacet{}, CreatedDateTime: &created},
				{ID: "reg", Name: "registrations.json", File: &onedrive.FileFacet{}, CreatedDateTime: &checked},
			},
			DeltaLink: "https://graph.test/v1.0/drives/d1/root/delta?token=t1",
		}, nil
	}
	var mu sync.Mutex
	uploaded := map[string]sidecar.Document{}
	mockSDK.PutChildContentFunc = func(_ context.Context, driveID, parentID, name, _ string, data []byte) (onedrive.DriveItem, error) {
		assert.Equal(t, "d1", driveID)
		assert.Equal(t, "acme", parentID)
		var doc sidecar.Document
		require.NoError(t, json.Unmarshal(data, &doc))
		mu.Lock()
		uploaded[name] = doc
		mu.Unlock()
		return onedrive.DriveItem{Name: name}, nil
	}

	var out bytes.Buffer
	a := newTestApp(webhookConfig(t.TempDir()), mockSDK)
	err := webhookSyncLogic(context.Background(), a, &out, rootResource, true)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Folder.Created")
	assert.Contains(t, out.String(), "Acme")
	assert.NotContains(t, out.String(), "registrations.json")
	assert.Contains(t, out.String(), "Dispatched 1 change(s).")

	require.Contains(t, uploaded, sidecar.UsersFile)
	require.Contains(t, uploaded, sidecar.CustomerFile)
	assert.Equal(t, sidecar.TemplateUsers, uploaded[sidecar.UsersFile].Template)

	regs := storedRegistrations(t, file)
	require.Len(t, regs, 1)
	assert.Equal(t, "t1", regs[0].Token)
}

func TestWebhookSyncLogicWithoutHandlers(t *testing.T) {
	checked := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	created := checked.Add(time.Minute)
	file := &memoryFile{content: registrationDoc(t, registration.Registration{
		RegistrationID: "sub-1", Resource: rootResource, Token: "t0", LastChecked: &checked,
	})}
	mockSDK := &MockSDK{
		GetDeltaPageFunc: func(context.Context, string) (onedrive.DeltaResponse, error) {
			return onedrive.DeltaResponse{
				Value:     []onedrive.DriveItem{{ID: "n1", Name: "New", Folder: &onedrive.FolderFacet{}, CreatedDateTime: &created}},
				DeltaLink: "https://graph.test/v1.0/drives/d1/root/delta?token=t2",
			}, nil
		},
		PutChildContentFunc: func(context.Context, string, string, string, string, []byte) (onedrive.DriveItem, error) {
			t.Fatal("handlers must not run")
			return onedrive.DriveItem{}, nil
		},
	}
	file.install(mockSDK, "reg", nil)

	var out bytes.Buffer
	err := webhookSyncLogic(context.Background(), newTestApp(webhookConfig(t.TempDir()), mockSDK), &out, rootResource, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Folder.Created")
	assert.NotContains(t, out.String(), "Dispatched")
}

func TestWebhookSyncLogicRequiresRegistrationFile(t *testing.T) {
	var out bytes.Buffer
	err := webhookSyncLogic(context.Background(), newTestApp(testConfig(), &MockSDK{}), &out, rootResource, true)
	assert.ErrorIs(t, err, app.ErrWebhookDisabled)
}

func TestWebhookSyncLogicMissingRegistration(t *testing.T) {
	file := &memoryFile{}
	mockSDK := &MockSDK{}
	file.install(mockSDK, "reg", nil)

	var out bytes.Buffer
	err := webhookSyncLogic(context.Background(), newTestApp(webhookConfig(t.TempDir()), mockSDK), &out, rootResource, true)
	assert.ErrorIs(t, err, registration.ErrRegistrationNotFound)
}

func TestWebhookSyncLogicRejectsUnapprovedDrive(t *testing.T) {
	mockSDK := &MockSDK{
		GetItemContentFunc: func(context.Context, string, string) ([]byte, error) {
			t.Fatal("registration file must not be read for an unapproved drive")
			return nil, nil
		},
	}

	var out bytes.Buffer
	err := webhookSyncLogic(context.Background(), newTestApp(webhookConfig(t.TempDir()), mockSDK), &out, "/drives/other/root", true)
	assert.ErrorIs(t, err, delta.ErrDriveNotApproved)
}

func TestWebhookRenewLogicCreatesSubscription(t *testing.T) {
	file := &memoryFile{}
	var checkedIn bool
	mockSDK := &MockSDK{
		CreateSubscriptionFunc: func(_ context.Context, sub onedrive.Subscription) (onedrive.Subscription, error) {
			assert.Equal(t, rootResource, sub.Resource)
			assert.Equal(t, "https://gateway.example.com/webhook", sub.NotificationURL)
			sub.ID = "sub-new"
			return sub, nil
		},
		CheckInFunc: func(context.Context, string, string, string) error {
			checkedIn = true
			return nil
		},
	}
	file.install(mockSDK, "reg", nil)
	lockDir := t.TempDir()

	var out bytes.Buffer
	err := webhookRenewLogic(context.Background(), newTestApp(webhookConfig(lockDir), mockSDK), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Subscription renewed.")
	assert.True(t, checkedIn)

	regs := storedRegistrations(t, file)
	require.Len(t, regs, 1)
	assert.Equal(t, "sub-new", regs[0].RegistrationID)
	assert.Equal(t, onedrive.InitialDeltaToken, regs[0].Token)

	sessions, err := session.NewManager(lockDir)
	require.NoError(t, err)
	state, err := sessions.Load()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "completed", state.Outcome)
}

func TestWebhookRenewLogicRetreats(t *testing.T) {
	mockSDK := &MockSDK{
		GetDriveItemWithListItemFunc: func(_ context.Context, _, itemID string) (onedrive.DriveItem, error) {
			return onedrive.DriveItem{ID: itemID, ListItem: &onedrive.ListItem{
				Fields: map[string]any{"CheckoutUserLookupId": "12"},
			}}, nil
		},
		CheckOutFunc: func(context.Context, string, string) error {
			t.Fatal("must not check out a held file")
			return nil
		},
	}

	var out bytes.Buffer
	err := webhookRenewLogic(context.Background(), newTestApp(webhookConfig(t.TempDir()), mockSDK), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Another worker holds the registration file")
}

func TestWebhookRenewLogicRequiresWebhookSettings(t *testing.T) {
	var out bytes.Buffer
	err := webhookRenewLogic(context.Background(), newTestApp(testConfig(), &MockSDK{}), &out)
	assert.ErrorIs(t, err, app.ErrWebhookDisabled)
}

func TestWebhookStatusLogic(t *testing.T) {
	file := &memoryFile{content: registrationDoc(t, registration.Registration{
		RegistrationID: "sub-1", DriveID: "d1", Resource: rootResource, Token: "t5",
	})}
	mockSDK := &MockSDK{}
	file.install(mockSDK, "reg", nil)

	lockDir := t.TempDir()
	sessions, err := session.NewManager(lockDir)
	require.NoError(t, err)
	require.NoError(t, sessions.Save(&session.State{Outcome: "retreated", Resource: rootResource, FinishedAt: time.Now()}))

	var out bytes.Buffer
	err = webhookStatusLogic(context.Background(), newTestApp(webhookConfig(lockDir), mockSDK), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "sub-1")
	assert.Contains(t, out.String(), "t5")
	assert.Contains(t, out.String(), "Registration file: available")
	assert.Contains(t, out.String(), "Last heartbeat: retreated")
}

func TestWebhookRemoveLogic(t *testing.T) {
	file := &memoryFile{content: registrationDoc(t, registration.Registration{
		RegistrationID: "sub-1", DriveID: "d1", Resource: rootResource, Token: "t5",
	})}
	var deleted string
	mockSDK := &MockSDK{
		DeleteSubscriptionFunc: func(_ context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	file.install(mockSDK, "reg", nil)

	var out bytes.Buffer
	err := webhookRemoveLogic(context.Background(), newTestApp(webhookConfig(t.TempDir()), mockSDK), &out)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", deleted)
	assert.Empty(t, storedRegistrations(t, file))
	assert.Contains(t, out.String(), "Removed subscription")
}

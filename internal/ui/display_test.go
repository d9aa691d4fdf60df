package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tonimelisma/onedrive-gateway/internal/access"
	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/registration"
	"github.com/tonimelisma/onedrive-gateway/internal/session"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

func TestDisplayBatch(t *testing.T) {
	var buf bytes.Buffer
	batch := delta.Batch{Resource: "/drives/d1/root", Token: "tok-9", Persisted: true}
	events := []delta.Event{
		{Type: delta.FolderCreated, Item: onedrive.DriveItem{ID: "f1", Name: "Acme"}},
		{Type: delta.FileDeleted, Item: onedrive.DriveItem{ID: "x1"}},
	}

	DisplayBatch(&buf, batch, events)

	out := buf.String()
	assert.Contains(t, out, "/drives/d1/root")
	assert.Contains(t, out, "tok-9 (saved)")
	assert.Contains(t, out, "Folder.Created")
	assert.Contains(t, out, "Acme")
	assert.Contains(t, out, "File.Deleted")
}

func TestDisplayEventsEmpty(t *testing.T) {
	var buf bytes.Buffer
	DisplayEvents(&buf, nil)
	assert.Equal(t, "No changes.\n", buf.String())
}

func TestDisplayRegistrations(t *testing.T) {
	var buf bytes.Buffer
	DisplayRegistrations(&buf, registration.Document{})
	assert.Contains(t, buf.String(), "No webhook registrations.")

	buf.Reset()
	checked := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	DisplayRegistrations(&buf, registration.Document{Registrations: []registration.Registration{
		{RegistrationID: "sub-1", Resource: "/drives/a/root", Token: "t1", LastChecked: &checked},
		{RegistrationID: "sub-2", Resource: "/drives/b/root", Token: "latest"},
	}})
	out := buf.String()
	assert.Contains(t, out, "sub-1")
	assert.Contains(t, out, "sub-2")
	assert.Contains(t, out, "Last checked:   -")
}

func TestDisplayHeartbeat(t *testing.T) {
	var buf bytes.Buffer
	DisplayHeartbeat(&buf, nil)
	assert.Contains(t, buf.String(), "No heartbeat")

	buf.Reset()
	DisplayHeartbeat(&buf, &session.State{Outcome: "failed", Error: "boom", FinishedAt: time.Now()})
	assert.Contains(t, buf.String(), "failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestDisplayContainment(t *testing.T) {
	var buf bytes.Buffer
	DisplayContainment(&buf, "42", []string{"10"}, 0, true)
	assert.Equal(t, "Item 42 is inside [10] (depth 0)\n", buf.String())

	buf.Reset()
	DisplayContainment(&buf, "42", []string{"99"}, -1, false)
	assert.Equal(t, "Item 42 is not inside [99] (unbounded)\n", buf.String())
}

func TestSuccess(t *testing.T) {
	var buf bytes.Buffer
	Success(&buf, "done")
	assert.Equal(t, "✓ done\n", buf.String())
}

func TestDisplayDecision(t *testing.T) {
	var buf bytes.Buffer
	DisplayDecision(&buf, "a@example.com", access.Decision{Roles: []string{"ADMIN"}, Read: []string{"f1", "f2"}})

	out := buf.String()
	assert.Contains(t, out, "Roles:   ADMIN\n")
	assert.Contains(t, out, "Read:    f1, f2\n")
	assert.Contains(t, out, "Write:   -\n")
}

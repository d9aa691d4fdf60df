package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-gateway/internal/delta"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/internal/tree"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

type upload struct {
	folder string
	name   string
	doc    Document
}

// fakeUploader records every document written.
type fakeUploader struct {
	uploads []upload
	err     error
}

func (f *fakeUploader) PutChildContent(_ context.Context, driveID, parentID, name, contentType string, data []byte) (onedrive.DriveItem, error) {
	if f.err != nil {
		return onedrive.DriveItem{}, f.err
	}
	if driveID != "d1" || contentType != "application/json" {
		return onedrive.DriveItem{}, errors.New("unexpected upload target")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return onedrive.DriveItem{}, err
	}
	f.uploads = append(f.uploads, upload{folder: parentID, name: name, doc: doc})
	return onedrive.DriveItem{ID: parentID + "/" + name}, nil
}

func (f *fakeUploader) names() []string {
	var out []string
	for _, u := range f.uploads {
		out = append(out, u.name)
	}
	sort.Strings(out)
	return out
}

type parents map[string]string

func (p parents) Parent(_ context.Context, id string) (string, error) {
	v, ok := p[id]
	if !ok {
		return "", onedrive.ErrResourceNotFound
	}
	return v, nil
}

// root -> customers -> acme -> reports
// root -> shared -> manuals -> drafts
// root -> other
func newHandler(up Uploader) *Handler {
	resolver := tree.NewResolver(parents{
		"customers": "root", "acme": "customers", "reports": "acme",
		"shared": "root", "manuals": "shared", "drafts": "manuals",
		"other": "root", "root": "",
	})
	folders := Folders{DriveID: "d1", CustomerID: "customers", SharedID: "shared"}
	manifest := Manifest{TemplateCustomer: {"industry": ""}}
	return NewHandler(up, resolver, folders, manifest, logger.NoopLogger{})
}

func TestHandlerFolderCreated(t *testing.T) {
	tests := []struct {
		folder string
		want   []string
	}{
		{folder: "acme", want: []string{CustomerFile, UsersFile}},
		{folder: "reports", want: []string{SectionFile}},
		{folder: "manuals", want: []string{CategoryFile}},
		{folder: "drafts", want: []string{SectionFile}},
		{folder: "other", want: nil},
		{folder: "customers", want: nil},
		{folder: "shared", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.folder, func(t *testing.T) {
			up := &fakeUploader{}
			h := newHandler(up)
			ev := delta.Event{Type: delta.FolderCreated, Item: onedrive.DriveItem{ID: tt.folder, Name: tt.folder, Folder: &onedrive.FolderFacet{}}}

			require.NoError(t, h.Handle(context.Background(), ev))
			assert.Equal(t, tt.want, up.names())
			for _, u := range up.uploads {
				assert.Equal(t, tt.folder, u.folder)
			}
		})
	}
}

func TestHandlerCustomerDocuments(t *testing.T) {
	up := &fakeUploader{}
	ev := delta.Event{Type: delta.FolderCreated, Item: onedrive.DriveItem{ID: "acme", Name: "Acme", Folder: &onedrive.FolderFacet{}}}
	require.NoError(t, newHandler(up).Handle(context.Background(), ev))
	require.Len(t, up.uploads, 2)

	users := up.uploads[0]
	assert.Equal(t, UsersFile, users.name)
	assert.Equal(t, TemplateUsers, users.doc.Template)
	assert.Equal(t, "Manage people", users.doc.Name)
	assert.Contains(t, users.doc.Description, `the "Acme" folder`)
	assert.Equal(t, []any{}, users.doc.Data["emails"])

	customer := up.uploads[1]
	assert.Equal(t, TemplateCustomer, customer.doc.Template)
	assert.Equal(t, map[string]any{"industry": ""}, customer.doc.Data)
}

func TestHandlerIgnoresOtherEvents(t *testing.T) {
	up := &fakeUploader{}
	h := newHandler(up)
	for _, typ := range []delta.EventType{delta.FolderUpdated, delta.FolderDeleted, delta.FileCreated} {
		require.NoError(t, h.Handle(context.Background(), delta.Event{Type: typ, Item: onedrive.DriveItem{ID: "acme"}}))
	}
	assert.Empty(t, up.uploads)
}

func TestHandlerErrors(t *testing.T) {
	t.Run("unknown ancestry", func(t *testing.T) {
		ev := delta.Event{Type: delta.FolderCreated, Item: onedrive.DriveItem{ID: "ghost"}}
		err := newHandler(&fakeUploader{}).Handle(context.Background(), ev)
		assert.ErrorIs(t, err, tree.ErrFolderResolution)
	})
	t.Run("upload failure", func(t *testing.T) {
		ev := delta.Event{Type: delta.FolderCreated, Item: onedrive.DriveItem{ID: "manuals"}}
		err := newHandler(&fakeUploader{err: onedrive.ErrQuotaExceeded}).Handle(context.Background(), ev)
		assert.ErrorIs(t, err, onedrive.ErrQuotaExceeded)
	})
	t.Run("missing id", func(t *testing.T) {
		err := newHandler(&fakeUploader{}).Handle(context.Background(), delta.Event{Type: delta.FolderCreated})
		assert.Error(t, err)
	})
}

func TestParseEmails(t *testing.T) {
	emails, err := ParseEmails([]byte(`{"type":"Users","data":{"emails":["a@x.com"," ","b@y.org "]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a@x.com", "b@y.org"}, emails)

	emails, err = ParseEmails([]byte(`{"data":{}}`))
	require.NoError(t, err)
	assert.Empty(t, emails)

	_, err = ParseEmails([]byte(`nope`))
	assert.ErrorIs(t, err, onedrive.ErrDecodingFailed)
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest("")
	require.NoError(t, err)
	assert.Empty(t, m)

	m, err = ParseManifest(`{"Category":{"cover":null}}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"cover": nil}, m.Section().Data)
	assert.Equal(t, "Section", m.Section().Name)

	_, err = ParseManifest("{")
	assert.Error(t, err)
}

func TestParseManifestRejectsInvalidShape(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not an object", `["Users"]`},
		{"unknown template", `{"Section":{}}`},
		{"template data not an object", `{"Customer":"acme"}`},
		{"emails not strings", `{"Users":{"emails":[1,2]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.raw)
			assert.ErrorContains(t, err, "invalid sidecar manifest")
		})
	}
}

// Package sidecar creates the small JSON documents that describe folders to
// the content editor, and reads the member list kept in a customer folder.
package sidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

// File names of the documents placed in new folders.
const (
	UsersFile    = "Users.sidecar"
	CustomerFile = "Customer.sidecar"
	CategoryFile = "Category.sidecar"
	SectionFile  = "Section.sidecar"
)

// Template names.
const (
	TemplateUsers    = "Users"
	TemplateCustomer = "Customer"
	TemplateCategory = "Category"
)

// Document is the content of a sidecar file.
type Document struct {
	Template    string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
}

// Manifest holds default data per template.
type Manifest map[string]map[string]any

// ParseManifest reads and validates a JSON manifest. An empty input is an
// empty manifest.
func ParseManifest(raw string) (Manifest, error) {
	m := Manifest{}
	if strings.TrimSpace(raw) == "" {
		return m, nil
	}
	if err := validateManifest(raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parsing sidecar manifest: %w", err)
	}
	return m, nil
}

func (m Manifest) document(template, name, description string) Document {
	data := map[string]any{}
	if defaults, ok := m[template]; ok {
		maps.Copy(data, defaults)
	}
	return Document{Template: template, Name: name, Description: description, Data: data}
}

// Customer describes a customer folder.
func (m Manifest) Customer() Document {
	return m.document(TemplateCustomer, "Customer",
		"The names, industry information, and other contact information for your customers")
}

// Users lists who may open a customer folder. folderName may be empty.
func (m Manifest) Users(folderName string) Document {
	where := "this folder"
	if folderName != "" {
		where = fmt.Sprintf(`the "%s" folder`, folderName)
	}
	doc := m.document(TemplateUsers, "Manage people",
		"These are the email addresses of the people that can access the documents in "+where+
			". Add, remove or change email address below.")
	if _, ok := doc.Data["emails"]; !ok {
		doc.Data["emails"] = []string{}
	}
	return doc
}

// Category describes a top-level shared folder.
func (m Manifest) Category() Document {
	return m.document(TemplateCategory, "Category", "The details, cover image and name of your categories")
}

// Section describes a nested folder. It uses the category template.
func (m Manifest) Section() Document {
	return m.document(TemplateCategory, "Section", "The details, cover image and name of your sections")
}

// ParseEmails extracts data.emails from a Users document. A document without
// the list yields none.
func ParseEmails(raw []byte) ([]string, error) {
	var doc struct {
		Data struct {
			Emails []string `json:"emails"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: users document: %w", onedrive.ErrDecodingFailed, err)
	}
	emails := make([]string, 0, len(doc.Data.Emails))
	for _, e := range doc.Data.Emails {
		if e = strings.TrimSpace(e); e != "" {
			emails = append(emails, e)
		}
	}
	return emails, nil
}

// Uploader writes a file into a folder.
type Uploader interface {
	PutChildContent(ctx context.Context, driveID, parentID, name, contentType string, data []byte) (onedrive.DriveItem, error)
}

// Upload writes doc as name into folderID.
func Upload(ctx context.Context, up Uploader, driveID, folderID, name string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if _, err := up.PutChildContent(ctx, driveID, folderID, name, "application/json", data); err != nil {
		return fmt.Errorf("uploading %s: %w", name, err)
	}
	return nil
}

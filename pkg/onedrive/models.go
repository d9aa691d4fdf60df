package onedrive

import "time"

// DriveItemList represents a page of DriveItems.
type DriveItemList struct {
	Value    []DriveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink,omitempty"`
}

// ItemReference points at the parent of an item.
type ItemReference struct {
	DriveID string `json:"driveId,omitempty"`
	ID      string `json:"id,omitempty"`
	Path    string `json:"path,omitempty"`
}

// FolderFacet is present on folders.
type FolderFacet struct {
	ChildCount int `json:"childCount"`
}

// FileFacet is present on files.
type FileFacet struct {
	MimeType string `json:"mimeType,omitempty"`
}

// DeletedFacet is present on delta records of removed items.
type DeletedFacet struct {
	State string `json:"state,omitempty"`
}

// RootFacet marks the drive root.
type RootFacet struct{}

// ListItem carries the SharePoint list fields behind a drive item.
type ListItem struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// DriveItem represents a file, folder, or other item stored in a drive.
// Delta records reuse the type; facets absent from a record stay nil.
type DriveItem struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	ETag                 string         `json:"eTag,omitempty"`
	CTag                 string         `json:"cTag,omitempty"`
	Size                 int64          `json:"size,omitempty"`
	WebURL               string         `json:"webUrl,omitempty"`
	CreatedDateTime      *time.Time     `json:"createdDateTime,omitempty"`
	LastModifiedDateTime *time.Time     `json:"lastModifiedDateTime,omitempty"`
	ParentReference      *ItemReference `json:"parentReference,omitempty"`
	Folder               *FolderFacet   `json:"folder,omitempty"`
	File                 *FileFacet     `json:"file,omitempty"`
	Root                 *RootFacet     `json:"root,omitempty"`
	Deleted              *DeletedFacet  `json:"deleted,omitempty"`
	ListItem             *ListItem      `json:"listItem,omitempty"`
	DownloadURL          string         `json:"@microsoft.graph.downloadUrl,omitempty"`
}

// ParentID returns the parent's id, or "" for the drive root.
func (d DriveItem) ParentID() string {
	if d.ParentReference == nil {
		return ""
	}
	return d.ParentReference.ID
}

// IsFolder reports whether the folder facet is present.
func (d DriveItem) IsFolder() bool { return d.Folder != nil }

// IsFile reports whether the file facet is present.
func (d DriveItem) IsFile() bool { return d.File != nil }

// CheckoutUserID returns the lookup id of the user holding the checkout, if any.
// Graph exposes it as a list item field; it is only populated when the item was
// fetched with $expand=listItem.
func (d DriveItem) CheckoutUserID() string {
	if d.ListItem == nil || d.ListItem.Fields == nil {
		return ""
	}
	switch v := d.ListItem.Fields["CheckoutUserLookupId"].(type) {
	case string:
		return v
	case float64:
		if v == 0 {
			return ""
		}
		return formatLookupID(v)
	}
	return ""
}

// DeltaResponse is one page of a delta query.
type DeltaResponse struct {
	Value     []DriveItem `json:"value"`
	NextLink  string      `json:"@odata.nextLink,omitempty"`
	DeltaLink string      `json:"@odata.deltaLink,omitempty"`
}

// Subscription is a Graph change notification subscription.
type Subscription struct {
	ID                 string    `json:"id,omitempty"`
	Resource           string    `json:"resource,omitempty"`
	ChangeType         string    `json:"changeType,omitempty"`
	NotificationURL    string    `json:"notificationUrl,omitempty"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState,omitempty"`
}

// ObjectIdentity is one sign-in identity of a directory user.
type ObjectIdentity struct {
	SignInType       string `json:"signInType,omitempty"`
	Issuer           string `json:"issuer,omitempty"`
	IssuerAssignedID string `json:"issuerAssignedId,omitempty"`
}

// User is the subset of a directory user the gateway reads.
type User struct {
	ID                string           `json:"id"`
	DisplayName       string           `json:"displayName,omitempty"`
	Mail              string           `json:"mail,omitempty"`
	UserPrincipalName string           `json:"userPrincipalName,omitempty"`
	OtherMails        []string         `json:"otherMails,omitempty"`
	Identities        []ObjectIdentity `json:"identities,omitempty"`
}

// Email returns the best available email address for the user.
func (u User) Email() string {
	if u.Mail != "" {
		return u.Mail
	}
	for _, id := range u.Identities {
		if id.SignInType == "emailAddress" && id.IssuerAssignedID != "" {
			return id.IssuerAssignedID
		}
	}
	if len(u.OtherMails) > 0 {
		return u.OtherMails[0]
	}
	return u.UserPrincipalName
}

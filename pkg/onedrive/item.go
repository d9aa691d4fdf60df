package onedrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// maxContentSize bounds downloads of small configuration documents.
const maxContentSize = 16 << 20

// GetDriveItem retrieves the metadata of a single item by id.
//
// Example:
//
//	item, err := client.GetDriveItem(ctx, driveID, "01ABCDEF")
//	if err != nil { return err }
//	fmt.Println(item.Name, item.ParentID())
func (c *Client) GetDriveItem(ctx context.Context, driveID, itemID string) (DriveItem, error) {
	c.logger.Debugf("GetDriveItem called for drive '%s', item '%s'", driveID, itemID)
	var item DriveItem
	if err := c.makeAPICallAndDecode(ctx, http.MethodGet, c.itemURL(driveID, itemID, ""), nil, &item, "get drive item"); err != nil {
		return DriveItem{}, fmt.Errorf("getting item '%s': %w", itemID, err)
	}
	return item, nil
}

// GetDriveItemWithListItem retrieves an item together with its list item fields.
// The checkout state of a file is only visible this way.
func (c *Client) GetDriveItemWithListItem(ctx context.Context, driveID, itemID string) (DriveItem, error) {
	c.logger.Debugf("GetDriveItemWithListItem called for drive '%s', item '%s'", driveID, itemID)
	var item DriveItem
	u := c.itemURL(driveID, itemID, "?$expand=listItem")
	if err := c.makeAPICallAndDecode(ctx, http.MethodGet, u, nil, &item, "get drive item with list item"); err != nil {
		return DriveItem{}, fmt.Errorf("getting item '%s' with list item: %w", itemID, err)
	}
	return item, nil
}

// ListChildren returns every child of a folder, following @odata.nextLink.
func (c *Client) ListChildren(ctx context.Context, driveID, folderID string) ([]DriveItem, error) {
	c.logger.Debugf("ListChildren called for drive '%s', folder '%s'", driveID, folderID)
	var all []DriveItem
	next := c.itemURL(driveID, folderID, "/children")
	for next != "" {
		var page DriveItemList
		if err := c.makeAPICallAndDecode(ctx, http.MethodGet, next, nil, &page, "list children"); err != nil {
			return nil, fmt.Errorf("listing children of '%s': %w", folderID, err)
		}
		all = append(all, page.Value...)
		next = page.NextLink
	}
	return all, nil
}

// GetItemContent downloads the content of a file.
//
// Graph answers /content with a 302 to a pre-authenticated URL. The redirect is
// followed with a plain client so the bearer token never leaves Graph.
func (c *Client) GetItemContent(ctx context.Context, driveID, itemID string) ([]byte, error) {
	c.logger.Debugf("GetItemContent called for drive '%s', item '%s'", driveID, itemID)
	return c.download(ctx, c.itemURL(driveID, itemID, "/content"), "item "+itemID)
}

// GetChildContent downloads a file addressed by name inside a folder.
func (c *Client) GetChildContent(ctx context.Context, driveID, parentID, name string) ([]byte, error) {
	c.logger.Debugf("GetChildContent called for drive '%s', parent '%s', name '%s'", driveID, parentID, name)
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return c.download(ctx, c.childURL(driveID, parentID, name, "/content"), name)
}

func (c *Client) download(ctx context.Context, contentURL, what string) ([]byte, error) {
	noRedirectClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: c.httpClient.Transport,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request for %s: %w", what, err)
	}
	res, err := noRedirectClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", what, classifyTokenError(err))
	}
	defer closeBodySafely(res.Body, c.logger, "download")

	switch {
	case res.StatusCode == http.StatusFound:
		location := res.Header.Get("Location")
		if location == "" {
			return nil, fmt.Errorf("%w: download of %s redirected without a Location header", ErrOperationFailed, what)
		}
		c.logger.Debugf("download of %s redirected, fetching pre-authenticated URL", what)
		return c.downloadFromURL(ctx, location, what)
	case res.StatusCode >= 400:
		return nil, fmt.Errorf("downloading %s: %w", what, errorFromResponse(res))
	}
	return readLimited(res.Body, what)
}

func (c *Client) downloadFromURL(ctx context.Context, location, what string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for pre-authenticated URL of %s: %w", what, err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s from pre-authenticated URL: %w", what, err)
	}
	defer closeBodySafely(res.Body, c.logger, "pre-authenticated download")
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("downloading %s: %w", what, errorFromResponse(res))
	}
	return readLimited(res.Body, what)
}

func readLimited(r io.Reader, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxContentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content of %s: %w", what, err)
	}
	if len(data) > maxContentSize {
		return nil, fmt.Errorf("%w: content of %s exceeds %d bytes", ErrOperationFailed, what, maxContentSize)
	}
	return data, nil
}

// PutItemContent replaces the content of an existing file. When ifMatch is not
// empty the write is conditional and fails with ErrPreconditionFailed if the
// item changed since that eTag was read.
func (c *Client) PutItemContent(ctx context.Context, driveID, itemID, contentType string, data []byte, ifMatch string) (DriveItem, error) {
	c.logger.Debugf("PutItemContent called for drive '%s', item '%s' (%d bytes)", driveID, itemID, len(data))
	headers := map[string]string{}
	if ifMatch != "" {
		headers["If-Match"] = ifMatch
	}
	return c.putContent(ctx, c.itemURL(driveID, itemID, "/content"), contentType, data, headers, "item "+itemID)
}

// PutChildContent creates or replaces a file by name inside a folder.
func (c *Client) PutChildContent(ctx context.Context, driveID, parentID, name, contentType string, data []byte) (DriveItem, error) {
	c.logger.Debugf("PutChildContent called for drive '%s', parent '%s', name '%s'", driveID, parentID, name)
	if err := ValidateName(name); err != nil {
		return DriveItem{}, err
	}
	return c.putContent(ctx, c.childURL(driveID, parentID, name, "/content"), contentType, data, nil, name)
}

func (c *Client) putContent(ctx context.Context, u, contentType string, data []byte, headers map[string]string, what string) (DriveItem, error) {
	res, err := c.apiCallWithHeaders(ctx, http.MethodPut, u, contentType, bytes.NewReader(data), headers)
	if err != nil {
		return DriveItem{}, fmt.Errorf("uploading content of %s: %w", what, err)
	}
	defer closeBodySafely(res.Body, c.logger, "upload content")

	var item DriveItem
	if err := decodeJSON(res.Body, &item); err != nil {
		return DriveItem{}, fmt.Errorf("%w: decoding upload response of %s: %w", ErrDecodingFailed, what, err)
	}
	return item, nil
}

// CheckOut checks a file out so that other writers are locked out.
func (c *Client) CheckOut(ctx context.Context, driveID, itemID string) error {
	c.logger.Debugf("CheckOut called for drive '%s', item '%s'", driveID, itemID)
	if err := c.makeAPICallAndDecode(ctx, http.MethodPost, c.itemURL(driveID, itemID, "/checkout"), nil, nil, "checkout"); err != nil {
		return fmt.Errorf("checking out '%s': %w", itemID, err)
	}
	return nil
}

// CheckIn releases a checkout with an optional comment.
func (c *Client) CheckIn(ctx context.Context, driveID, itemID, comment string) error {
	c.logger.Debugf("CheckIn called for drive '%s', item '%s'", driveID, itemID)
	payload := map[string]string{"comment": comment}
	if err := c.makeAPICallAndDecode(ctx, http.MethodPost, c.itemURL(driveID, itemID, "/checkin"), payload, nil, "checkin"); err != nil {
		return fmt.Errorf("checking in '%s': %w", itemID, err)
	}
	return nil
}

func formatLookupID(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

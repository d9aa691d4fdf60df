package onedrive

import (
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
)

// closeBodySafely closes an HTTP response body and logs any error.
// This is intended for use in defer statements where error handling is not critical.
func closeBodySafely(body io.Closer, logger Logger, operation string) {
	if err := body.Close(); err != nil {
		logger.Warnf("Failed to close %s body: %v", operation, err)
	}
}

// seekToStart resets a ReadSeeker to the beginning for retry operations.
func seekToStart(body io.ReadSeeker) error {
	if body == nil {
		return nil
	}
	_, err := body.Seek(0, io.SeekStart)
	return err
}

// readErrorBody reads and returns the error body from an HTTP response.
func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	errorBody, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	return string(errorBody)
}

// itemURL builds drives/{driveID}/items/{itemID}{suffix} under the base URL.
func (c *Client) itemURL(driveID, itemID, suffix string) string {
	return c.baseURL + "drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(itemID) + suffix
}

// childURL addresses a child of a folder by name: items/{parentID}:/{name}:{suffix}.
func (c *Client) childURL(driveID, parentID, name, suffix string) string {
	return c.baseURL + "drives/" + url.PathEscape(driveID) + "/items/" + url.PathEscape(parentID) +
		":/" + url.PathEscape(name) + ":" + suffix
}

// absoluteURL resolves a Graph resource path such as "/drives/x/root" against the base URL.
func (c *Client) absoluteURL(resource string) string {
	return c.baseURL + strings.TrimPrefix(resource, "/")
}

// decodeJSON decodes a response body, treating an empty body as an empty value.
func decodeJSON(r io.Reader, dest any) error {
	err := json.NewDecoder(r).Decode(dest)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

package onedrive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// InitialDeltaToken asks Graph for a checkpoint at the current state without
// replaying history.
const InitialDeltaToken = "latest"

// DeltaURL builds the delta query URL of a resource such as "/drives/{id}/root".
func (c *Client) DeltaURL(resource, token string) string {
	return c.absoluteURL(resource) + "/delta?token=" + url.QueryEscape(token)
}

// GetDeltaPage fetches one page of a delta query. The URL is either one built
// by DeltaURL or a nextLink returned by a previous page.
func (c *Client) GetDeltaPage(ctx context.Context, pageURL string) (DeltaResponse, error) {
	c.logger.Debugf("GetDeltaPage called with URL '%s'", pageURL)
	var page DeltaResponse
	if err := c.makeAPICallAndDecode(ctx, http.MethodGet, pageURL, nil, &page, "delta"); err != nil {
		return DeltaResponse{}, fmt.Errorf("fetching delta page: %w", err)
	}
	return page, nil
}

// TokenFromLink extracts the token query parameter of a nextLink or deltaLink.
func TokenFromLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parsing delta link: %w", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		return "", errors.New("delta link has no token parameter")
	}
	return token, nil
}

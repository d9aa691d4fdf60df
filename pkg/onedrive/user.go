package onedrive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const userSelect = "id,displayName,mail,userPrincipalName,otherMails,identities"

// GetUser retrieves a directory user by object id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	c.logger.Debugf("GetUser called for '%s'", id)
	var user User
	u := c.baseURL + "users/" + url.PathEscape(id) + "?$select=" + userSelect
	if err := c.makeAPICallAndDecode(ctx, http.MethodGet, u, nil, &user, "get user"); err != nil {
		return User{}, fmt.Errorf("getting user '%s': %w", id, err)
	}
	return user, nil
}

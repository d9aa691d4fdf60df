package onedrive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// MaxDriveSubscriptionLifetime is the longest expiry Graph accepts for driveItem
// subscriptions.
const MaxDriveSubscriptionLifetime = 42300 * time.Minute

// CreateSubscription registers a change notification subscription.
func (c *Client) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	c.logger.Debugf("CreateSubscription called for resource '%s'", sub.Resource)
	if sub.ChangeType == "" {
		sub.ChangeType = "updated"
	}
	var created Subscription
	if err := c.makeAPICallAndDecode(ctx, http.MethodPost, c.baseURL+"subscriptions", sub, &created, "create subscription"); err != nil {
		return Subscription{}, fmt.Errorf("creating subscription for '%s': %w", sub.Resource, err)
	}
	return created, nil
}

// UpdateSubscription extends the expiry of an existing subscription. A subscription
// Graph has already dropped yields ErrResourceNotFound.
func (c *Client) UpdateSubscription(ctx context.Context, id string, expiration time.Time) (Subscription, error) {
	c.logger.Debugf("UpdateSubscription called for subscription '%s'", id)
	payload := map[string]string{"expirationDateTime": expiration.UTC().Format(time.RFC3339)}
	var updated Subscription
	u := c.baseURL + "subscriptions/" + url.PathEscape(id)
	if err := c.makeAPICallAndDecode(ctx, http.MethodPatch, u, payload, &updated, "update subscription"); err != nil {
		return Subscription{}, fmt.Errorf("updating subscription '%s': %w", id, err)
	}
	return updated, nil
}

// DeleteSubscription removes a subscription.
func (c *Client) DeleteSubscription(ctx context.Context, id string) error {
	c.logger.Debugf("DeleteSubscription called for subscription '%s'", id)
	u := c.baseURL + "subscriptions/" + url.PathEscape(id)
	if err := c.makeAPICallAndDecode(ctx, http.MethodDelete, u, nil, nil, "delete subscription"); err != nil {
		return fmt.Errorf("deleting subscription '%s': %w", id, err)
	}
	return nil
}

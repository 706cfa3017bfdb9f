package sdk

import (
	"context"
	"net/http"
)

// CreateGroup creates the caller's group. The server ignores any ID in the
// request and picks its own; the caller becomes the group's admin.
func (c *Client) CreateGroup(ctx context.Context, group Group) (*Group, error) {
	var created Group
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		url:    "/groups",
		body:   group,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

package sdk

import (
	"context"
	"net/http"
)

func (c *Client) GetInstance(ctx context.Context, id string) (*Instance, error) {
	var instance Instance
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		url:    "/instances/{id}",
		path:   map[string]string{"id": id},
	}, &instance)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

// DeleteInstance tears down the instance and the provider resource behind it.
// Clients delete before re-provisioning; the portal never holds more than one
// instance per client.
func (c *Client) DeleteInstance(ctx context.Context, id string) error {
	return c.do(ctx, requestOptions{
		method: http.MethodDelete,
		url:    "/instances/{id}",
		path:   map[string]string{"id": id},
	}, nil)
}

// ListInstances returns the instances the caller can see: their own for
// clients, the whole group's for admins.
func (c *Client) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		url:    "/instances",
	}, &instances)
	return instances, err
}

// CreateInstance provisions a new instance using the defaults of the caller's
// group. The instance comes back in a transient status and becomes usable
// once its status reaches OK.
func (c *Client) CreateInstance(ctx context.Context) (*Instance, error) {
	var instance Instance
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		url:    "/instances",
	}, &instance)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

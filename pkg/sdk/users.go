package sdk

import (
	"context"
	"net/http"
)

// Me resolves the identity behind the current credentials. The login flow
// uses it to check the credentials and backfill the session principal.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		url:    "/me",
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		url:    "/users/{id}",
		path:   map[string]string{"id": id},
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateUser(ctx context.Context, id string, user User) (*User, error) {
	var updated User
	err := c.do(ctx, requestOptions{
		method: http.MethodPut,
		url:    "/users/{id}",
		path:   map[string]string{"id": id},
		body:   user,
	}, &updated)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users Users
	err := c.do(ctx, requestOptions{
		method: http.MethodGet,
		url:    "/users",
	}, &users)
	return users.Users, err
}

// CreateUser serves both anonymous self-registration and admins adding
// clients to their group. For registration the session holds no token and the
// request goes out unauthenticated.
func (c *Client) CreateUser(ctx context.Context, user User) (*User, error) {
	var created User
	err := c.do(ctx, requestOptions{
		method: http.MethodPost,
		url:    "/users",
		body:   user,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

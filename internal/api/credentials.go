package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Credential represents an n8n credential. Data is write-only on the API and
// is never read back.
type Credential struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt *time.Time             `json:"createdAt,omitempty"`
	UpdatedAt *time.Time             `json:"updatedAt,omitempty"`
}

// ListCredentials returns one page of credentials
func (c *Client) ListCredentials(ctx context.Context, limit int, cursor string) (*ListResult[Credential], error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	path := "/credentials"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp ListResult[Credential]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type credentialCreateRequest struct {
	Name string                 `json:"name"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// CreateCredential creates a new credential. The API requires a data object,
// so an empty one is sent when cred carries none.
func (c *Client) CreateCredential(ctx context.Context, cred *Credential) (*Credential, error) {
	req := credentialCreateRequest{Name: cred.Name, Type: cred.Type, Data: cred.Data}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}

	var created Credential
	if err := c.send(ctx, http.MethodPost, "/credentials", req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCredential changes the name or type of a credential
func (c *Client) UpdateCredential(ctx context.Context, id string, cred *Credential) (*Credential, error) {
	var updated Credential
	if err := c.send(ctx, http.MethodPatch, "/credentials/"+url.PathEscape(id), cred, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteCredential deletes a credential
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/credentials/"+url.PathEscape(id), nil, nil)
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Tag represents a workflow tag
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ListTags returns one page of tags
func (c *Client) ListTags(ctx context.Context, limit int, cursor string) (*ListResult[Tag], error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	path := "/tags"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp ListResult[Tag]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FindTag looks a tag up by its exact name, walking every page.
func (c *Client) FindTag(ctx context.Context, name string) (*Tag, error) {
	cursor := ""
	for {
		page, err := c.ListTags(ctx, 100, cursor)
		if err != nil {
			return nil, err
		}
		for _, tag := range page.Data {
			if tag.Name == name {
				return &tag, nil
			}
		}
		if page.NextCursor == "" {
			return nil, fmt.Errorf("tag %q not found", name)
		}
		cursor = page.NextCursor
	}
}

// CreateTag creates a new tag
func (c *Client) CreateTag(ctx context.Context, name string) (*Tag, error) {
	var tag Tag
	if err := c.send(ctx, http.MethodPost, "/tags", map[string]string{"name": name}, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// DeleteTag deletes a tag
func (c *Client) DeleteTag(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/tags/"+url.PathEscape(id), nil, nil)
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Workflow represents an n8n workflow. Node, connection and settings content
// is kept as raw JSON.
type Workflow struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Tags        []Tag           `json:"tags,omitempty"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time      `json:"updatedAt,omitempty"`
}

// ListWorkflowsOptions contains options for listing workflows
type ListWorkflowsOptions struct {
	Active            *bool
	Name              string
	ExcludePinnedData bool
	Limit             int
	Cursor            string
}

// WorkflowUpdateRequest contains only the fields allowed in create and update requests
type WorkflowUpdateRequest struct {
	Name        string          `json:"name"`
	Nodes       json.RawMessage `json:"nodes"`
	Connections json.RawMessage `json:"connections"`
	Settings    json.RawMessage `json:"settings"`
}

var emptyObject = json.RawMessage("{}")

func updateRequest(wf *Workflow) *WorkflowUpdateRequest {
	// The API rejects requests without connections or settings.
	req := &WorkflowUpdateRequest{
		Name:        wf.Name,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
		Settings:    wf.Settings,
	}
	if len(req.Nodes) == 0 {
		req.Nodes = json.RawMessage("[]")
	}
	if len(req.Connections) == 0 || string(req.Connections) == "null" {
		req.Connections = emptyObject
	}
	if len(req.Settings) == 0 || string(req.Settings) == "null" {
		req.Settings = emptyObject
	}
	return req
}

// ListWorkflows returns one page of workflows
func (c *Client) ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*ListResult[Workflow], error) {
	params := url.Values{}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Active != nil {
		params.Set("active", strconv.FormatBool(*opts.Active))
	}
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}
	if opts.Name != "" {
		params.Set("name", opts.Name)
	}
	if opts.ExcludePinnedData {
		params.Set("excludePinnedData", "true")
	}

	path := "/workflows"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp ListResult[Workflow]
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateWorkflow creates a new workflow. The active flag and tags are ignored
// by the API on create.
func (c *Client) CreateWorkflow(ctx context.Context, wf *Workflow) (*Workflow, error) {
	var created Workflow
	if err := c.send(ctx, http.MethodPost, "/workflows", updateRequest(wf), &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateWorkflow replaces the content of an existing workflow
func (c *Client) UpdateWorkflow(ctx context.Context, id string, wf *Workflow) (*Workflow, error) {
	var updated Workflow
	if err := c.send(ctx, http.MethodPut, "/workflows/"+url.PathEscape(id), updateRequest(wf), &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteWorkflow deletes a workflow
func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil)
}

// ActivateWorkflow activates a workflow
func (c *Client) ActivateWorkflow(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/activate", nil, nil)
}

// DeactivateWorkflow deactivates a workflow
func (c *Client) DeactivateWorkflow(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPost, "/workflows/"+url.PathEscape(id)+"/deactivate", nil, nil)
}

// UpdateWorkflowTags replaces the tags of a workflow
func (c *Client) UpdateWorkflowTags(ctx context.Context, id string, tagIDs []string) ([]Tag, error) {
	body := make([]map[string]string, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		body = append(body, map[string]string{"id": tagID})
	}

	var tags []Tag
	if err := c.send(ctx, http.MethodPut, "/workflows/"+url.PathEscape(id)+"/tags", body, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

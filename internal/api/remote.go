package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// DefaultPageSize is the page size used when listing remote state.
const DefaultPageSize = 100

// Remote adapts the REST client to the capability set of the reconciliation
// engine.
type Remote struct {
	client   *Client
	pageSize int
}

// NewRemote wraps a client
func NewRemote(client *Client) *Remote {
	return &Remote{client: client, pageSize: DefaultPageSize}
}

// List returns one page of entities of the given kind.
func (r *Remote) List(ctx context.Context, kind entity.Kind, cursor string) (*entity.Page, error) {
	page := &entity.Page{}

	switch kind {
	case entity.KindTag:
		resp, err := r.client.ListTags(ctx, r.pageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, t := range resp.Data {
			page.Items = append(page.Items, &entity.Tag{ID: t.ID, Name: t.Name})
		}
		page.NextCursor = resp.NextCursor

	case entity.KindCredential:
		resp, err := r.client.ListCredentials(ctx, r.pageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, c := range resp.Data {
			page.Items = append(page.Items, &entity.Credential{ID: c.ID, Name: c.Name, Type: c.Type})
		}
		page.NextCursor = resp.NextCursor

	case entity.KindWorkflow:
		resp, err := r.client.ListWorkflows(ctx, ListWorkflowsOptions{
			Limit:             r.pageSize,
			Cursor:            cursor,
			ExcludePinnedData: true,
		})
		if err != nil {
			return nil, err
		}
		for _, wf := range resp.Data {
			page.Items = append(page.Items, toEntity(&wf))
		}
		page.NextCursor = resp.NextCursor

	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}

	return page, nil
}

// Create creates an entity and returns its remote id. Creating a tag that
// already exists resolves to the existing tag.
func (r *Remote) Create(ctx context.Context, e entity.Entity, ids entity.Resolver) (string, error) {
	switch v := e.(type) {
	case *entity.Tag:
		tag, err := r.client.CreateTag(ctx, v.Name)
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Conflict() {
			tag, err = r.client.FindTag(ctx, v.Name)
		}
		if err != nil {
			return "", err
		}
		return tag.ID, nil

	case *entity.Credential:
		cred, err := r.client.CreateCredential(ctx, &Credential{Name: v.Name, Type: v.Type})
		if err != nil {
			return "", err
		}
		return cred.ID, nil

	case *entity.Workflow:
		body, tagIDs, err := bind(v, ids)
		if err != nil {
			return "", err
		}
		created, err := r.client.CreateWorkflow(ctx, body)
		if err != nil {
			return "", err
		}
		if len(tagIDs) > 0 {
			if _, err := r.client.UpdateWorkflowTags(ctx, created.ID, tagIDs); err != nil {
				return "", fmt.Errorf("workflow created with id %s but tagging failed: %w", created.ID, err)
			}
		}
		return created.ID, nil
	}
	return "", fmt.Errorf("cannot create %T", e)
}

// Update replaces the content of an existing entity.
func (r *Remote) Update(ctx context.Context, remoteID string, e entity.Entity, ids entity.Resolver) error {
	switch v := e.(type) {
	case *entity.Credential:
		_, err := r.client.UpdateCredential(ctx, remoteID, &Credential{Name: v.Name, Type: v.Type})
		return err

	case *entity.Workflow:
		body, tagIDs, err := bind(v, ids)
		if err != nil {
			return err
		}
		if _, err := r.client.UpdateWorkflow(ctx, remoteID, body); err != nil {
			return err
		}
		_, err = r.client.UpdateWorkflowTags(ctx, remoteID, tagIDs)
		return err
	}
	return fmt.Errorf("cannot update %T", e)
}

// Delete removes an entity.
func (r *Remote) Delete(ctx context.Context, ref entity.Ref, remoteID string) error {
	switch ref.Kind {
	case entity.KindTag:
		return r.client.DeleteTag(ctx, remoteID)
	case entity.KindCredential:
		return r.client.DeleteCredential(ctx, remoteID)
	case entity.KindWorkflow:
		return r.client.DeleteWorkflow(ctx, remoteID)
	}
	return fmt.Errorf("cannot delete %s", ref)
}

// SetActive activates or deactivates a workflow.
func (r *Remote) SetActive(ctx context.Context, ref entity.Ref, remoteID string, active bool) error {
	if ref.Kind != entity.KindWorkflow {
		return fmt.Errorf("cannot change the active state of %s", ref)
	}
	if active {
		return r.client.ActivateWorkflow(ctx, remoteID)
	}
	return r.client.DeactivateWorkflow(ctx, remoteID)
}

// bind converts a workflow into a request body with remote ids filled in,
// and resolves its tag ids.
func bind(wf *entity.Workflow, ids entity.Resolver) (*Workflow, []string, error) {
	nodes, err := wf.Bind(ids)
	if err != nil {
		return nil, nil, err
	}

	tagIDs := make([]string, 0, len(wf.Tags))
	for _, name := range wf.Tags {
		id, ok := ids.RemoteID(entity.TagRef(name))
		if !ok {
			return nil, nil, fmt.Errorf("tag %q has no remote id", name)
		}
		tagIDs = append(tagIDs, id)
	}

	return &Workflow{
		Name:        wf.Name,
		Nodes:       nodes,
		Connections: wf.Connections,
		Settings:    wf.Settings,
	}, tagIDs, nil
}

func toEntity(wf *Workflow) *entity.Workflow {
	tags := make([]string, 0, len(wf.Tags))
	for _, t := range wf.Tags {
		tags = append(tags, t.Name)
	}
	return &entity.Workflow{
		ID:          wf.ID,
		Name:        wf.Name,
		Active:      wf.Active,
		Nodes:       wf.Nodes,
		Connections: wf.Connections,
		Settings:    wf.Settings,
		Tags:        entity.NormalizeTags(tags),
	}
}

package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enthus-appdev/n8nctl/internal/reconcile"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/apply"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
	rt "github.com/enthus-appdev/n8nctl/internal/reconcile/remotetest"
	"github.com/enthus-appdev/n8nctl/internal/reconcile/report"
)

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		temporary bool
		notFound  bool
	}{
		{"unavailable", http.StatusServiceUnavailable, true, false},
		{"rate limited", http.StatusTooManyRequests, true, false},
		{"not found", http.StatusNotFound, false, true},
		{"bad request", http.StatusBadRequest, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, client := newFakeN8N(t)
			f.failNext("GET /api/v1/tags", tt.status)

			_, err := client.ListTags(context.Background(), 10, "")

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, http.StatusText(tt.status), apiErr.Message)
			assert.Equal(t, tt.temporary, apiErr.Temporary())
			assert.Equal(t, tt.notFound, apiErr.NotFound())
			assert.Equal(t, tt.temporary, apply.IsTransient(err))
		})
	}
}

func TestClient_SendsAPIKey(t *testing.T) {
	f, client := newFakeN8N(t)
	_, err := client.ListTags(context.Background(), 0, "")
	require.NoError(t, err)

	client.apiKey = "wrong"
	_, err = client.ListTags(context.Background(), 0, "")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	_, _, requests := f.state()
	assert.Equal(t, []string{"GET /api/v1/tags", "GET /api/v1/tags"}, requests)
}

func TestRemote_ListFollowsCursor(t *testing.T) {
	_, client := newFakeN8N(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := client.CreateTag(context.Background(), name)
		require.NoError(t, err)
	}

	remote := NewRemote(client)
	remote.pageSize = 2

	first, err := remote.List(context.Background(), entity.KindTag, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := remote.List(context.Background(), entity.KindTag, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, entity.TagRef("c"), second.Items[0].Ref())
	assert.Equal(t, "3", second.Items[0].RemoteID())
}

func TestRemote_CreateExistingTagResolvesIt(t *testing.T) {
	_, client := newFakeN8N(t)
	existing, err := client.CreateTag(context.Background(), "prod")
	require.NoError(t, err)

	id, err := NewRemote(client).Create(context.Background(), rt.Tag("prod"), apply.NewRegistry(nil))
	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)
}

func TestRemote_DeleteMissingIsNotFound(t *testing.T) {
	_, client := newFakeN8N(t)

	err := NewRemote(client).Delete(context.Background(), entity.WorkflowRef("Gone"), "42")
	require.Error(t, err)
	assert.True(t, apply.IsNotFound(err))
	assert.False(t, apply.IsTransient(err))
}

func TestRemote_CreateWorkflowBindsReferences(t *testing.T) {
	f, client := newFakeN8N(t)
	remote := NewRemote(client)
	ids := apply.NewRegistry(nil)

	tagID, err := remote.Create(context.Background(), rt.Tag("prod"), ids)
	require.NoError(t, err)
	ids.Set(entity.TagRef("prod"), tagID)

	credID, err := remote.Create(context.Background(), rt.Credential("Shop", "httpBasicAuth"), ids)
	require.NoError(t, err)
	ids.Set(entity.CredentialRef("Shop"), credID)

	wf := rt.WorkflowWithNodes("Orders", "", true, `[
		{"name":"HTTP","type":"n8n-nodes-base.httpRequest","credentials":{"httpBasicAuth":{"name":"Shop"}}}
	]`, "prod")

	id, err := remote.Create(context.Background(), wf, ids)
	require.NoError(t, err)

	workflows, _, _ := f.state()
	created := workflows[id]
	assert.False(t, created.Active, "activation is a separate call")
	assert.JSONEq(t, `{}`, string(created.Settings))
	assert.Contains(t, string(created.Nodes), `"id":"`+credID+`"`)
	require.Len(t, created.Tags, 1)
	assert.Equal(t, "prod", created.Tags[0].Name)
}

func TestRemote_CreateWorkflowWithUnknownTagFails(t *testing.T) {
	f, client := newFakeN8N(t)

	_, err := NewRemote(client).Create(context.Background(), rt.Workflow("Orders", false, "missing"), apply.NewRegistry(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tag "missing" has no remote id`)
	workflows, _, _ := f.state()
	assert.Empty(t, workflows)
}

func TestRemote_ReconcileConverges(t *testing.T) {
	f, client := newFakeN8N(t)
	_, err := client.CreateTag(context.Background(), "legacy")
	require.NoError(t, err)

	remote := NewRemote(client)
	remote.pageSize = 1

	r := reconcile.New(reconcile.Options{
		Apply: apply.Options{
			Concurrency:    2,
			MaxRetries:     3,
			CallTimeout:    5 * time.Second,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	}, zerolog.Nop())

	desired := rt.Collection(
		rt.Tag("prod"),
		rt.Credential("Shop", "httpBasicAuth"),
		rt.WorkflowWithNodes("Orders", "", true, `[
			{"name":"HTTP","type":"n8n-nodes-base.httpRequest","credentials":{"httpBasicAuth":{"name":"Shop"}}}
		]`, "prod"),
	)

	// One transient failure on activation is absorbed by a retry.
	f.failNext("POST /api/v1/workflows/{id}/activate", http.StatusBadGateway)

	res, err := r.Reconcile(context.Background(), desired, remote)
	require.NoError(t, err)
	summary := report.Summarize(res)
	require.True(t, summary.Success, "failures: %v", summary.Failures)
	assert.Equal(t, 5, summary.Applied)

	workflows, tags, _ := f.state()
	require.Len(t, workflows, 1)
	for _, wf := range workflows {
		assert.True(t, wf.Active)
	}
	require.Len(t, tags, 1)

	desired = rt.Collection(
		rt.Tag("prod"),
		rt.Credential("Shop", "httpBasicAuth"),
		rt.WorkflowWithNodes("Orders", "", true, `[
			{"name":"HTTP","type":"n8n-nodes-base.httpRequest","credentials":{"httpBasicAuth":{"name":"Shop"}}}
		]`, "prod"),
	)
	res, err = r.Reconcile(context.Background(), desired, remote)
	require.NoError(t, err)
	assert.Empty(t, res.Outcomes, "second run must be a no-op")
}

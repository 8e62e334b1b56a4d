package entity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[Ref]string

func (m mapResolver) RemoteID(ref Ref) (string, bool) {
	id, ok := m[ref]
	return id, ok
}

const callerNodes = `[
  {"name": "Start", "type": "n8n-nodes-base.manualTrigger", "parameters": {}},
  {"name": "Call", "type": "n8n-nodes-base.executeWorkflow", "parameters": {"workflowId": "local-sub"}},
  {"name": "HTTP", "type": "n8n-nodes-base.httpRequest",
   "parameters": {"url": "https://example.com"},
   "credentials": {"httpBasicAuth": {"id": "7", "name": "Prod Basic"}}}
]`

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindWorkflow, kind)

	kind, err = ParseKind("tag")
	require.NoError(t, err)
	assert.Equal(t, KindTag, kind)

	_, err = ParseKind("variable")
	assert.Error(t, err)
}

func TestCollection_AddRejectsDuplicates(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Add(&Tag{Name: "prod"}))

	err := c.Add(&Tag{Name: "prod"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))

	// Same name, different kind is a different identity.
	require.NoError(t, c.Add(&Workflow{Name: "prod"}))
	assert.Equal(t, 2, c.Len())
}

func TestCollection_AddRejectsEmptyName(t *testing.T) {
	c := NewCollection()
	assert.Error(t, c.Add(&Workflow{}))
}

func TestCollection_RefsAreLexical(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Add(&Workflow{Name: "b"}))
	require.NoError(t, c.Add(&Tag{Name: "z"}))
	require.NoError(t, c.Add(&Workflow{Name: "a"}))
	require.NoError(t, c.Add(&Credential{Name: "c", Type: "t"}))

	assert.Equal(t, []Ref{
		CredentialRef("c"),
		TagRef("z"),
		WorkflowRef("a"),
		WorkflowRef("b"),
	}, c.Refs())

	wfs := c.Workflows()
	require.Len(t, wfs, 2)
	assert.Equal(t, "a", wfs[0].Name)
}

func TestWorkflow_Analyze(t *testing.T) {
	wf := &Workflow{Name: "caller", Nodes: json.RawMessage(callerNodes)}
	require.NoError(t, wf.Analyze())

	assert.Equal(t, []Credential{{Name: "Prod Basic", Type: "httpBasicAuth"}}, wf.Credentials)
	require.Len(t, wf.SubWorkflows, 1)
	assert.Equal(t, "local-sub", wf.SubWorkflows[0].TargetID)

	wf.Tags = []string{"ops"}
	assert.Equal(t, []Ref{TagRef("ops"), CredentialRef("Prod Basic")}, wf.References())
}

func TestWorkflow_AnalyzeRejectsBadNodes(t *testing.T) {
	wf := &Workflow{Name: "bad", Nodes: json.RawMessage(`{"not": "a list"}`)}
	assert.Error(t, wf.Analyze())
}

func TestStructuralHash_IgnoresFormattingAndRemoteIDs(t *testing.T) {
	local := &Workflow{
		Name:        "w",
		Nodes:       json.RawMessage(`[{"name":"A","type":"x","parameters":{"b":1,"a":2},"credentials":{"t":{"name":"c"}}}]`),
		Connections: json.RawMessage(`{}`),
		Tags:        []string{"ops"},
	}
	remote := &Workflow{
		Name: "w",
		Nodes: json.RawMessage(`[
			{"type": "x", "parameters": {"a": 2, "b": 1}, "name": "A",
			 "credentials": {"t": {"id": "99", "name": "c"}}}
		]`),
		Tags: []string{"ops"},
	}

	h1, err := local.ContentHash(HashStructural, nil)
	require.NoError(t, err)
	h2, err := remote.ContentHash(HashStructural, nil)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	e1, err := local.ContentHash(HashExact, nil)
	require.NoError(t, err)
	e2, err := remote.ContentHash(HashExact, nil)
	require.NoError(t, err)
	assert.NotEqual(t, e1, e2)
}

func TestStructuralHash_TagsAreContent(t *testing.T) {
	a := &Workflow{Name: "w", Nodes: json.RawMessage(`[]`)}
	b := &Workflow{Name: "w", Nodes: json.RawMessage(`[]`), Tags: []string{"ops"}}

	ha, err := a.ContentHash(HashStructural, nil)
	require.NoError(t, err)
	hb, err := b.ContentHash(HashStructural, nil)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestFinalize_SubWorkflowIDsComparableAcrossIDSpaces(t *testing.T) {
	build := func(callerID, subID string) *Collection {
		nodes := `[{"name":"Call","type":"n8n-nodes-base.executeWorkflow","parameters":{"workflowId":"` + subID + `"}}]`
		caller := &Workflow{Name: "caller", LocalID: callerID, Nodes: json.RawMessage(nodes)}
		sub := &Workflow{Name: "sub", LocalID: subID, Nodes: json.RawMessage(`[]`)}
		require.NoError(t, caller.Analyze())
		require.NoError(t, sub.Analyze())

		c := NewCollection()
		require.NoError(t, c.Add(caller))
		require.NoError(t, c.Add(sub))
		require.NoError(t, c.Finalize(HashStructural))
		return c
	}

	desired := build("d1", "d2")
	current := build("r1", "r2")

	dc, _ := desired.Get(WorkflowRef("caller"))
	cc, _ := current.Get(WorkflowRef("caller"))
	assert.Equal(t, dc.(*Workflow).Hash, cc.(*Workflow).Hash)

	link := dc.(*Workflow).SubWorkflows[0]
	assert.True(t, link.Resolved)
	assert.Equal(t, WorkflowRef("sub"), link.Target)
}

func TestFinalize_RejectsSharedWorkflowID(t *testing.T) {
	c := NewCollection()
	require.NoError(t, c.Add(&Workflow{Name: "Alpha", LocalID: "x1"}))
	require.NoError(t, c.Add(&Workflow{Name: "Beta", LocalID: "x1"}))

	err := c.Finalize(HashStructural)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicate))
	assert.Contains(t, err.Error(), `"Alpha" and "Beta"`)
}

func TestBind_RewritesRemoteIDs(t *testing.T) {
	wf := &Workflow{Name: "caller", Nodes: json.RawMessage(callerNodes)}
	require.NoError(t, wf.Analyze())
	wf.SubWorkflows[0].Resolved = true
	wf.SubWorkflows[0].Target = WorkflowRef("sub")

	bound, err := wf.Bind(mapResolver{
		CredentialRef("Prod Basic"): "cred-42",
		WorkflowRef("sub"):          "wf-9",
	})
	require.NoError(t, err)

	var nodes []map[string]interface{}
	require.NoError(t, json.Unmarshal(bound, &nodes))
	assert.Equal(t, "wf-9", nodes[1]["parameters"].(map[string]interface{})["workflowId"])
	cred := nodes[2]["credentials"].(map[string]interface{})["httpBasicAuth"].(map[string]interface{})
	assert.Equal(t, "cred-42", cred["id"])
}

func TestBind_FailsOnUnresolvedCredential(t *testing.T) {
	wf := &Workflow{
		Name:  "w",
		Nodes: json.RawMessage(`[{"name":"A","type":"x","credentials":{"t":{"name":"missing"}}}]`),
	}
	_, err := wf.Bind(mapResolver{})
	assert.Error(t, err)
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeTags([]string{"b", "a", "", "b"}))
	assert.Nil(t, NormalizeTags(nil))
	assert.Nil(t, NormalizeTags([]string{""}))
}

func TestParseHashMode(t *testing.T) {
	m, err := ParseHashMode("")
	require.NoError(t, err)
	assert.Equal(t, HashStructural, m)

	m, err = ParseHashMode("exact")
	require.NoError(t, err)
	assert.Equal(t, HashExact, m)

	_, err = ParseHashMode("fuzzy")
	assert.Error(t, err)
}

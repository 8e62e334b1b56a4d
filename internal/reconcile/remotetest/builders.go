package remotetest

import (
	"encoding/json"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Tag builds a tag.
func Tag(name string) *entity.Tag {
	return &entity.Tag{Name: name}
}

// Credential builds a credential reference.
func Credential(name, credType string) *entity.Credential {
	return &entity.Credential{Name: name, Type: credType}
}

// Workflow builds a workflow with a single trigger node.
func Workflow(name string, active bool, tags ...string) *entity.Workflow {
	return WorkflowWithNodes(name, "", active, `[{"name":"Start","type":"n8n-nodes-base.manualTrigger","parameters":{}}]`, tags...)
}

// WorkflowWithNodes builds an analyzed workflow from raw node JSON.
func WorkflowWithNodes(name, localID string, active bool, nodes string, tags ...string) *entity.Workflow {
	wf := &entity.Workflow{
		LocalID: localID,
		Name:    name,
		Active:  active,
		Nodes:   json.RawMessage(nodes),
		Tags:    entity.NormalizeTags(tags),
	}
	if err := wf.Analyze(); err != nil {
		panic(err)
	}
	return wf
}

// Collection builds a finalized collection using structural hashing. It
// panics on invalid input; it is meant for tests only.
func Collection(entities ...entity.Entity) *entity.Collection {
	c := entity.NewCollection()
	for _, e := range entities {
		if err := c.Add(e); err != nil {
			panic(err)
		}
	}
	if err := c.Finalize(entity.HashStructural); err != nil {
		panic(err)
	}
	return c
}

package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/enthus-appdev/n8nctl/internal/reconcile/entity"
)

// Definition is the on-disk shape of one entity. Workflow files are plain n8n
// workflow exports; tags and credentials declare a kind.
type Definition struct {
	Kind   string `json:"kind,omitempty" validate:"omitempty,oneof=workflow tag credential"`
	ID     string `json:"id,omitempty"`
	Name   string `json:"name" validate:"required"`
	Type   string `json:"type,omitempty" validate:"required_if=Kind credential"`
	Active bool   `json:"active,omitempty"`

	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	Tags        []TagRef        `json:"tags,omitempty" validate:"dive"`
}

// TagRef is a tag as listed on a workflow: a bare name, or an {id, name}
// object as found in n8n exports.
type TagRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name" validate:"required"`
}

func (t *TagRef) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name = name
		return nil
	}
	type plain TagRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.New("tag must be a name or an object with a name")
	}
	*t = TagRef(p)
	return nil
}

// decodeDefinition parses JSON or YAML content. YAML is converted to JSON
// first so both formats share the same decoding rules.
func decodeDefinition(data []byte, isYAML bool) (*Definition, error) {
	if isYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML: %w", err)
		}
		data = converted
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, errors.New("file must hold a single entity, not a list")
	}

	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &def, nil
}

// Entity converts the definition into a model entity.
func (d *Definition) Entity() (entity.Entity, error) {
	kind, err := entity.ParseKind(d.Kind)
	if err != nil {
		return nil, err
	}

	switch kind {
	case entity.KindTag:
		return &entity.Tag{Name: d.Name}, nil
	case entity.KindCredential:
		return &entity.Credential{Name: d.Name, Type: d.Type}, nil
	}

	if len(bytes.TrimSpace(d.Nodes)) == 0 {
		return nil, errors.New("workflow has no nodes")
	}
	names := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		names = append(names, t.Name)
	}
	wf := &entity.Workflow{
		LocalID:     d.ID,
		Name:        d.Name,
		Active:      d.Active,
		Nodes:       d.Nodes,
		Connections: d.Connections,
		Settings:    d.Settings,
		Tags:        entity.NormalizeTags(names),
	}
	if err := wf.Analyze(); err != nil {
		return nil, err
	}
	return wf, nil
}

// DefinitionOf converts an entity back into its on-disk shape.
func DefinitionOf(e entity.Entity) *Definition {
	switch v := e.(type) {
	case *entity.Tag:
		return &Definition{Kind: string(entity.KindTag), Name: v.Name}
	case *entity.Credential:
		return &Definition{Kind: string(entity.KindCredential), Name: v.Name, Type: v.Type}
	case *entity.Workflow:
		d := &Definition{
			ID:          v.ID,
			Name:        v.Name,
			Active:      v.Active,
			Nodes:       v.Nodes,
			Connections: v.Connections,
			Settings:    v.Settings,
		}
		for _, t := range v.Tags {
			d.Tags = append(d.Tags, TagRef{Name: t})
		}
		return d
	}
	return nil
}

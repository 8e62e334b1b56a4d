package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"github.com/opencontainers/go-digest"
)

// HashMode selects how workflow content is compared.
type HashMode string

const (
	// HashStructural canonicalizes normalized content (RFC 8785) before digesting,
	// so whitespace, key order and remote-only ids do not count as changes.
	HashStructural HashMode = "structural"
	// HashExact digests the compacted content as loaded.
	HashExact HashMode = "exact"
)

// ParseHashMode parses a hash mode name, defaulting to structural
func ParseHashMode(s string) (HashMode, error) {
	switch HashMode(s) {
	case "", HashStructural:
		return HashStructural, nil
	case HashExact:
		return HashExact, nil
	}
	return "", fmt.Errorf("unknown hash mode %q (want %s or %s)", s, HashStructural, HashExact)
}

// ContentHash computes the digest of the workflow content. names maps the ids
// of workflows in the same collection to their names; it is used to make
// sub-workflow references comparable across id spaces.
func (w *Workflow) ContentHash(mode HashMode, names map[string]string) (digest.Digest, error) {
	if mode == HashExact {
		return w.exactHash()
	}
	return w.structuralHash(names)
}

func (w *Workflow) structuralHash(names map[string]string) (digest.Digest, error) {
	nodes, err := parseNodes(w.Nodes)
	if err != nil {
		return "", err
	}

	rewriteCredentials(nodes, func(_ string, cred map[string]interface{}) {
		delete(cred, "id")
	})
	rewriteSubWorkflowIDs(nodes, func(id string) (string, bool) {
		if name, ok := names[id]; ok {
			return "name:" + name, true
		}
		return "", false
	})

	tags := w.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := map[string]interface{}{
		"nodes": nodes,
		"tags":  tags,
	}
	for key, raw := range map[string]json.RawMessage{"connections": w.Connections, "settings": w.Settings} {
		if isEmptyJSON(raw) {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", key, err)
		}
		doc[key] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal workflow content: %w", err)
	}

	canonical, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize workflow content: %w", err)
	}

	return digest.FromBytes(canonical), nil
}

func (w *Workflow) exactHash() (digest.Digest, error) {
	var buf bytes.Buffer
	for _, raw := range []json.RawMessage{w.Nodes, w.Connections, w.Settings} {
		if len(raw) > 0 {
			if err := json.Compact(&buf, raw); err != nil {
				return "", fmt.Errorf("failed to compact workflow content: %w", err)
			}
		}
		buf.WriteByte('\n')
	}
	buf.WriteString(strings.Join(w.Tags, ","))

	return digest.FromBytes(buf.Bytes()), nil
}

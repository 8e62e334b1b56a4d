package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	nodeTypeExecuteWorkflow        = "n8n-nodes-base.executeWorkflow"
	nodeTypeExecuteWorkflowTrigger = "n8n-nodes-base.executeWorkflowTrigger"
)

// parseNodes decodes a fresh, mutable copy of the node list
func parseNodes(raw json.RawMessage) ([]map[string]interface{}, error) {
	if isEmptyJSON(raw) {
		return nil, nil
	}

	var nodes []map[string]interface{}
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse nodes: %w", err)
	}
	return nodes, nil
}

// extractCredentials collects the credentials referenced by node credential
// blocks, which look like {"credentials": {"<type>": {"id": "..", "name": ".."}}}.
func extractCredentials(nodes []map[string]interface{}) []Credential {
	seen := make(map[string]bool)
	var creds []Credential

	for _, node := range nodes {
		block, ok := node["credentials"].(map[string]interface{})
		if !ok {
			continue
		}
		for credType, v := range block {
			cred, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := cred["name"].(string)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			creds = append(creds, Credential{Name: name, Type: credType})
		}
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].Name < creds[j].Name })
	return creds
}

func isExecuteWorkflowNode(node map[string]interface{}) bool {
	nodeType, _ := node["type"].(string)
	return nodeType == nodeTypeExecuteWorkflow || nodeType == nodeTypeExecuteWorkflowTrigger
}

// extractSubWorkflowIDs extracts workflow IDs referenced by Execute Workflow nodes
func extractSubWorkflowIDs(nodes []map[string]interface{}) []string {
	var ids []string
	seen := make(map[string]bool)

	rewriteSubWorkflowIDs(nodes, func(id string) (string, bool) {
		if !seen[id] {
			ids = append(ids, id)
			seen[id] = true
		}
		return "", false
	})

	return ids
}

// rewriteSubWorkflowIDs visits every sub-workflow id in Execute Workflow node
// parameters. When fn returns true the id is replaced in place.
func rewriteSubWorkflowIDs(nodes []map[string]interface{}, fn func(id string) (string, bool)) {
	for _, node := range nodes {
		if !isExecuteWorkflowNode(node) {
			continue
		}

		params, ok := node["parameters"].(map[string]interface{})
		if !ok {
			continue
		}

		// Direct workflow ID
		if id, ok := params["workflowId"].(string); ok && id != "" {
			if next, replace := fn(id); replace {
				params["workflowId"] = next
			}
		}

		// Workflow object with id
		if wf, ok := params["workflow"].(map[string]interface{}); ok {
			if id, ok := wf["id"].(string); ok && id != "" {
				if next, replace := fn(id); replace {
					wf["id"] = next
				}
			}
		}

		// Resource locator value
		if locator, ok := params["workflowId"].(map[string]interface{}); ok {
			if id, ok := locator["value"].(string); ok && id != "" {
				if next, replace := fn(id); replace {
					locator["value"] = next
				}
			}
		}
	}
}

// rewriteCredentials visits every credential block entry.
func rewriteCredentials(nodes []map[string]interface{}, fn func(name string, cred map[string]interface{})) {
	for _, node := range nodes {
		block, ok := node["credentials"].(map[string]interface{})
		if !ok {
			continue
		}
		for _, v := range block {
			cred, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := cred["name"].(string)
			fn(name, cred)
		}
	}
}

// Bind returns the workflow nodes with credential and sub-workflow ids
// replaced by the remote ids known to the resolver.
func (w *Workflow) Bind(ids Resolver) (json.RawMessage, error) {
	nodes, err := parseNodes(w.Nodes)
	if err != nil {
		return nil, err
	}
	if nodes == nil {
		return json.RawMessage("[]"), nil
	}

	var bindErr error
	rewriteCredentials(nodes, func(name string, cred map[string]interface{}) {
		if id, ok := ids.RemoteID(CredentialRef(name)); ok {
			cred["id"] = id
			return
		}
		if existing, _ := cred["id"].(string); existing == "" && bindErr == nil {
			bindErr = fmt.Errorf("credential %q has no remote id", name)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	targets := make(map[string]Ref, len(w.SubWorkflows))
	for _, link := range w.SubWorkflows {
		if link.Resolved {
			targets[link.TargetID] = link.Target
		}
	}
	rewriteSubWorkflowIDs(nodes, func(id string) (string, bool) {
		target, ok := targets[id]
		if !ok {
			return "", false
		}
		return ids.RemoteID(target)
	})

	data, err := json.Marshal(nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}
	return data, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return false
	}
	switch buf.String() {
	case "null", "{}", "[]":
		return true
	}
	return false
}

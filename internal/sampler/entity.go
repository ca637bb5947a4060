package sampler

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var JobStates = []string{"PENDING", "RUNNING", "COMPLETED", "FAILED", "TIMEOUT"}

var NodeStates = []string{"IDLE", "MIXED", "ALLOCATED", "DOWN", "DRAINING", "DRAINED"}

// Entity is a live record carrying one or more concurrent state tags.
type Entity struct {
	ID string
	// Index is the numeric identifier of the entity, when it has one.
	Index    int64
	HasIndex bool
	Tags     []string
}

func (e Entity) Has(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// Busy reports whether the entity runs jobs.
func (e Entity) Busy() bool {
	return e.Has("ALLOCATED") || e.Has("MIXED")
}

func items(doc any, key string) []any {
	if key != "" {
		object, ok := doc.(map[string]any)
		if !ok {
			return nil
		}
		doc = object[key]
	}
	list, _ := doc.([]any)
	return list
}

// JobEntities extracts jobs from a collection document, key names the field
// holding the array (empty when the document is the array).
func JobEntities(doc any, key string) []Entity {
	var out []Entity
	for _, item := range items(doc, key) {
		job, ok := item.(map[string]any)
		if !ok {
			continue
		}
		index, err := toInt(job["job_id"])
		if err != nil {
			continue
		}
		out = append(out, Entity{
			ID:       strconv.FormatInt(index, 10),
			Index:    index,
			HasIndex: true,
			Tags:     stateTags(job["job_state"]),
		})
	}
	return out
}

// NodeEntities extracts nodes from a collection document. The raw DRAIN flag
// is expanded into DRAINED when the node is otherwise idle and DRAINING when
// it still runs jobs.
func NodeEntities(doc any, key string) []Entity {
	var out []Entity
	for _, item := range items(doc, key) {
		node, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := node["name"].(string)
		if !ok || name == "" {
			continue
		}
		tags := stateTags(node["state"])
		if slices.Contains(tags, "DRAIN") {
			if slices.Contains(tags, "IDLE") {
				tags = append(tags, "DRAINED")
			} else {
				tags = append(tags, "DRAINING")
			}
		}
		out = append(out, Entity{ID: name, Tags: tags})
	}
	return out
}

// stateTags accepts "RUNNING", ["RUNNING", "COMPLETING"] and
// {"current": ["RUNNING"]} shapes.
func stateTags(v any) []string {
	switch state := v.(type) {
	case string:
		return []string{strings.ToUpper(state)}
	case []any:
		out := make([]string, 0, len(state))
		for _, s := range state {
			if str, ok := s.(string); ok {
				out = append(out, strings.ToUpper(str))
			}
		}
		return out
	case map[string]any:
		return stateTags(state["current"])
	}
	return nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case map[string]any:
		// {"set": true, "number": 42} shaped integers
		return toInt(n["number"])
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}

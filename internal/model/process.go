package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ProcessNode is one process in a hierarchy snapshot
type ProcessNode struct {
	PID        string        `json:"pid"`
	Name       string        `json:"name"`
	Cmdline    string        `json:"cmdline,omitempty"`
	CPU        float64       `json:"cpu"`
	Runtime    string        `json:"runtime"`
	Suspicious bool          `json:"suspicious"`
	Children   []ProcessNode `json:"children"`
}

// HasChildren treats absent and empty children the same way
func (n ProcessNode) HasChildren() bool {
	return len(n.Children) > 0
}

// UnmarshalJSON never fails on a JSON object. Scalars may arrive as strings
// or numbers, cpu defaults to 0 and children that are not objects are skipped.
func (n *ProcessNode) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*n = ProcessNode{
		PID:        rawString(fields["pid"]),
		Name:       rawString(fields["name"]),
		Cmdline:    rawString(fields["cmdline"]),
		CPU:        rawFloat(fields["cpu"]),
		Runtime:    rawString(fields["runtime"]),
		Suspicious: rawBool(fields["suspicious"]),
		Children:   decodeNodes(fields["children"]),
	}
	return nil
}

// ProcessTreeResponse is the body of GET process-tree
type ProcessTreeResponse struct {
	Processes []ProcessNode `json:"processes"`
}

// UnmarshalJSON skips malformed roots instead of rejecting the forest
func (r *ProcessTreeResponse) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	r.Processes = decodeNodes(fields["processes"])
	return nil
}

// decodeNodes returns nil when raw is not an array
func decodeNodes(raw json.RawMessage) []ProcessNode {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}
	nodes := make([]ProcessNode, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var node ProcessNode
		if err := json.Unmarshal(item, &node); err != nil {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func rawFloat(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rawString(raw)), 64)
	if err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return v
	}
	return 0
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	v, err := strconv.ParseBool(strings.TrimSpace(rawString(raw)))
	return err == nil && v
}

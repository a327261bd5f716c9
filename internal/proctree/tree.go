package proctree

import (
	"sync"

	"sentinel-monitor/internal/model"
)

// DefaultRootPID is expanded on a fresh model, matching the init process
const DefaultRootPID = "1"

// Aggregates are computed over the full forest, never the visible subset
type Aggregates struct {
	Count           int `json:"count"`
	SuspiciousCount int `json:"suspicious_count"`
	MaxDepth        int `json:"max_depth"`
}

// VisibleNode is one flat row of the rendered tree. It never carries the
// node's children, so a sequence stays linear in the number of rows.
type VisibleNode struct {
	PID         string  `json:"pid"`
	Name        string  `json:"name"`
	Cmdline     string  `json:"cmdline,omitempty"`
	CPU         float64 `json:"cpu"`
	Runtime     string  `json:"runtime"`
	Suspicious  bool    `json:"suspicious"`
	Depth       int     `json:"depth"`
	HasChildren bool    `json:"has_children"`
	Expanded    bool    `json:"expanded"`
}

// Model holds the current process forest and the expansion set.
// The expansion set survives Load; it is a set of hints keyed by pid and
// may contain pids that are no longer present.
type Model struct {
	mu       sync.RWMutex
	forest   []model.ProcessNode
	expanded map[string]struct{}
	visible  []VisibleNode
	totals   Aggregates
}

// NewModel creates an empty model with the given pids initially expanded
func NewModel(seed ...string) *Model {
	m := &Model{
		expanded: make(map[string]struct{}, len(seed)),
	}
	for _, pid := range seed {
		m.expanded[pid] = struct{}{}
	}
	m.recompute()
	return m
}

// Load replaces the forest atomically and keeps the expansion set
func (m *Model) Load(forest []model.ProcessNode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forest = forest
	m.recompute()
}

// Toggle flips the expansion of pid. It returns false without changing
// anything when no node with that pid has children, including unknown pids.
func (m *Model) Toggle(pid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !hasExpandable(m.forest, pid) {
		return false
	}
	if _, ok := m.expanded[pid]; ok {
		delete(m.expanded, pid)
	} else {
		m.expanded[pid] = struct{}{}
	}
	m.visible = VisibleSequence(m.forest, m.expanded)
	return true
}

func (m *Model) IsExpanded(pid string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.expanded[pid]
	return ok
}

// Forest returns the current forest. Callers must not mutate it.
func (m *Model) Forest() []model.ProcessNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forest
}

// Expanded returns a copy of the expansion set
func (m *Model) Expanded() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.expanded))
	for pid := range m.expanded {
		out[pid] = struct{}{}
	}
	return out
}

// Visible returns the current visible sequence
func (m *Model) Visible() []VisibleNode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VisibleNode, len(m.visible))
	copy(out, m.visible)
	return out
}

func (m *Model) Aggregates() Aggregates {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals
}

func (m *Model) recompute() {
	m.totals = Aggregate(m.forest)
	m.visible = VisibleSequence(m.forest, m.expanded)
}

type frame struct {
	node  *model.ProcessNode
	depth int
}

// Aggregate walks the whole forest. MaxDepth is 0-indexed (a lone root is 0).
func Aggregate(forest []model.ProcessNode) Aggregates {
	var agg Aggregates
	stack := pushReversed(nil, forest, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		agg.Count++
		if f.node.Suspicious {
			agg.SuspiciousCount++
		}
		if f.depth > agg.MaxDepth {
			agg.MaxDepth = f.depth
		}
		stack = pushReversed(stack, f.node.Children, f.depth+1)
	}
	return agg
}

// VisibleSequence returns the pre-order traversal limited to nodes whose
// ancestors are all expanded. Roots are always visible.
func VisibleSequence(forest []model.ProcessNode, expanded map[string]struct{}) []VisibleNode {
	out := make([]VisibleNode, 0, len(forest))
	stack := pushReversed(nil, forest, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		_, isExpanded := expanded[f.node.PID]
		hasChildren := f.node.HasChildren()
		out = append(out, VisibleNode{
			PID:         f.node.PID,
			Name:        f.node.Name,
			Cmdline:     f.node.Cmdline,
			CPU:         f.node.CPU,
			Runtime:     f.node.Runtime,
			Suspicious:  f.node.Suspicious,
			Depth:       f.depth,
			HasChildren: hasChildren,
			Expanded:    isExpanded && hasChildren,
		})
		if hasChildren && isExpanded {
			stack = pushReversed(stack, f.node.Children, f.depth+1)
		}
	}
	return out
}

// Walk visits every node of the forest in pre-order
func Walk(forest []model.ProcessNode, fn func(node *model.ProcessNode, depth int)) {
	stack := pushReversed(nil, forest, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(f.node, f.depth)
		stack = pushReversed(stack, f.node.Children, f.depth+1)
	}
}

// Find returns the first node with pid in pre-order
func Find(forest []model.ProcessNode, pid string) (*model.ProcessNode, bool) {
	stack := pushReversed(nil, forest, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node.PID == pid {
			return f.node, true
		}
		stack = pushReversed(stack, f.node.Children, f.depth+1)
	}
	return nil, false
}

// pushReversed pushes nodes so the first one is popped first
func pushReversed(stack []frame, nodes []model.ProcessNode, depth int) []frame {
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: &nodes[i], depth: depth})
	}
	return stack
}

func hasExpandable(forest []model.ProcessNode, pid string) bool {
	stack := pushReversed(nil, forest, 0)
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node.PID == pid && f.node.HasChildren() {
			return true
		}
		stack = pushReversed(stack, f.node.Children, f.depth+1)
	}
	return false
}

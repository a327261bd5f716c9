package proctree

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"sentinel-monitor/internal/model"

	psutil "github.com/shirou/gopsutil/v3/process"
)

// DefaultSuspiciousCPU is the CPU percent above which a local process is flagged
const DefaultSuspiciousCPU = 80.0

// HostProcess is the per-process data read from the local host
type HostProcess struct {
	PID     int32
	PPID    int32
	Name    string
	Cmdline string
	CPU     float64
	Started time.Time
}

// HostSource builds a placeholder forest from the processes of the local host.
// It is used when the backend process tree is unreachable.
type HostSource struct {
	SuspiciousCPU float64
	now           func() time.Time
}

func NewHostSource(suspiciousCPU float64) *HostSource {
	if suspiciousCPU <= 0 {
		suspiciousCPU = DefaultSuspiciousCPU
	}
	return &HostSource{SuspiciousCPU: suspiciousCPU, now: time.Now}
}

func (h *HostSource) ProcessTree(ctx context.Context) ([]model.ProcessNode, error) {
	procs, err := psutil.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list host processes: %w", err)
	}

	list := make([]HostProcess, 0, len(procs))
	for _, p := range procs {
		ppid, _ := p.PpidWithContext(ctx)
		name, _ := p.NameWithContext(ctx)
		cmdline, _ := p.CmdlineWithContext(ctx)
		cpu, _ := p.CPUPercentWithContext(ctx)
		hp := HostProcess{
			PID:     p.Pid,
			PPID:    ppid,
			Name:    name,
			Cmdline: cmdline,
			CPU:     cpu,
		}
		if created, err := p.CreateTimeWithContext(ctx); err == nil && created > 0 {
			hp.Started = time.UnixMilli(created)
		}
		list = append(list, hp)
	}

	return BuildForest(list, h.SuspiciousCPU, h.now()), nil
}

// BuildForest links processes by parent pid. Processes whose parent is not in
// the list become roots; parent cycles are broken at the lowest pid.
func BuildForest(procs []HostProcess, suspiciousCPU float64, now time.Time) []model.ProcessNode {
	byPID := make(map[int32]HostProcess, len(procs))
	for _, p := range procs {
		byPID[p.PID] = p
	}

	children := make(map[int32][]int32)
	var roots []int32
	for _, p := range byPID {
		if _, ok := byPID[p.PPID]; ok && p.PPID != p.PID {
			children[p.PPID] = append(children[p.PPID], p.PID)
		} else {
			roots = append(roots, p.PID)
		}
	}
	sortPIDs(roots)
	for pid := range children {
		sortPIDs(children[pid])
	}

	toNode := func(p HostProcess) model.ProcessNode {
		return model.ProcessNode{
			PID:        strconv.Itoa(int(p.PID)),
			Name:       p.Name,
			Cmdline:    p.Cmdline,
			CPU:        p.CPU,
			Runtime:    formatRuntime(p.Started, now),
			Suspicious: suspiciousCPU > 0 && p.CPU >= suspiciousCPU,
			Children:   []model.ProcessNode{},
		}
	}

	type item struct {
		pid  int32
		post bool
	}
	visited := make(map[int32]bool, len(byPID))
	built := make(map[int32]model.ProcessNode, len(byPID))

	build := func(root int32) model.ProcessNode {
		stack := []item{{pid: root}}
		for len(stack) > 0 {
			it := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if it.post {
				node := toNode(byPID[it.pid])
				for _, c := range children[it.pid] {
					if child, ok := built[c]; ok {
						node.Children = append(node.Children, child)
						delete(built, c)
					}
				}
				built[it.pid] = node
				continue
			}
			if visited[it.pid] {
				continue
			}
			visited[it.pid] = true
			stack = append(stack, item{pid: it.pid, post: true})
			kids := children[it.pid]
			for i := len(kids) - 1; i >= 0; i-- {
				if !visited[kids[i]] {
					stack = append(stack, item{pid: kids[i]})
				}
			}
		}
		node := built[root]
		delete(built, root)
		return node
	}

	forest := make([]model.ProcessNode, 0, len(roots))
	for _, pid := range roots {
		forest = append(forest, build(pid))
	}

	var rest []int32
	for pid := range byPID {
		if !visited[pid] {
			rest = append(rest, pid)
		}
	}
	sortPIDs(rest)
	for _, pid := range rest {
		if !visited[pid] {
			forest = append(forest, build(pid))
		}
	}
	return forest
}

func sortPIDs(pids []int32) {
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
}

func formatRuntime(started, now time.Time) string {
	if started.IsZero() || now.Before(started) {
		return "0s"
	}
	d := now.Sub(started)
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

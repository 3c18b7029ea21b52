package graph

import (
	"context"
	"sort"
	"sync"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/task"
)

// Node is a single vertex of the dependency graph: one task plus its
// forward (dependents) and reverse (dependencies) adjacency.
type Node struct {
	Task       *task.Task
	Deps       map[string]*Node
	Dependents map[string]*Node
}

// Graph is a validated task dependency DAG. A Graph returned by Build is
// guaranteed acyclic; the invariant is only ever violated transiently
// inside Build and AddTask, never observably.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*Node
}

// Build constructs a validated graph from a batch of tasks. Every
// dependency id must reference a submitted task and the result must be
// acyclic; otherwise the offending submission is rejected as a whole and
// no graph is exposed.
func Build(ctx context.Context, tasks []*task.Task) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building task graph.", "task_count", len(tasks))

	g := &Graph{nodes: make(map[string]*Node, len(tasks))}

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, exists := g.nodes[t.ID]; exists {
			return nil, &DuplicateTaskError{TaskID: t.ID}
		}
		g.nodes[t.ID] = &Node{
			Task:       t,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}

	for _, t := range tasks {
		if err := g.link(g.nodes[t.ID]); err != nil {
			return nil, err
		}
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}

	logger.Debug("Task graph built.", "node_count", len(g.nodes))
	return g, nil
}

// AddTask inserts a task after the initial build. Validation is
// incremental: only a targeted cycle check from the new node runs, not a
// full re-scan. Because nothing depends on the new node yet, the only
// possible cycle runs through the node itself.
func (g *Graph) AddTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, exists := g.nodes[t.ID]; exists {
		return &DuplicateTaskError{TaskID: t.ID}
	}

	n := &Node{
		Task:       t,
		Deps:       make(map[string]*Node),
		Dependents: make(map[string]*Node),
	}
	g.nodes[t.ID] = n

	if err := g.link(n); err != nil {
		g.unlink(n)
		delete(g.nodes, t.ID)
		return err
	}

	if path := g.cycleThrough(n); path != nil {
		g.unlink(n)
		delete(g.nodes, t.ID)
		return &CycleError{Path: path}
	}

	ctxlog.FromContext(ctx).Debug("Task added to graph.", "task_id", t.ID, "node_count", len(g.nodes))
	return nil
}

// link wires n to its declared dependencies. Caller holds the lock during
// Build (construction) or AddTask.
func (g *Graph) link(n *Node) error {
	for _, depID := range n.Task.DependsOn {
		if depID == n.Task.ID {
			// A self-dependency is a one-node cycle.
			return &CycleError{Path: []string{n.Task.ID, n.Task.ID}}
		}
		dep, ok := g.nodes[depID]
		if !ok {
			return &UnknownDependencyError{TaskID: n.Task.ID, DepID: depID}
		}
		n.Deps[depID] = dep
		dep.Dependents[n.Task.ID] = n
	}
	return nil
}

// unlink removes the edges link created, used to roll back a rejected
// AddTask.
func (g *Graph) unlink(n *Node) {
	for _, dep := range n.Deps {
		delete(dep.Dependents, n.Task.ID)
	}
}

// detectCycles runs a three-color depth-first search over the whole graph.
// White nodes are unvisited, gray nodes sit on the current recursion
// stack, black nodes are fully explored. Any edge into a gray node is a
// back-edge, which means a cycle.
func (g *Graph) detectCycles() error {
	gray := make(map[string]bool)
	black := make(map[string]bool)
	var stack []string

	var visit func(n *Node) error
	visit = func(n *Node) error {
		gray[n.Task.ID] = true
		stack = append(stack, n.Task.ID)

		for _, depID := range sortedKeys(n.Deps) {
			dep := n.Deps[depID]
			if black[dep.Task.ID] {
				continue
			}
			if gray[dep.Task.ID] {
				return &CycleError{Path: cyclePath(stack, dep.Task.ID)}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(gray, n.Task.ID)
		black[n.Task.ID] = true
		return nil
	}

	for _, id := range g.sortedIDs() {
		if black[id] {
			continue
		}
		if err := visit(g.nodes[id]); err != nil {
			return err
		}
	}
	return nil
}

// cycleThrough searches for a dependency path from n back to n. It returns
// the cycle path when found, nil otherwise.
func (g *Graph) cycleThrough(n *Node) []string {
	seen := make(map[string]bool)
	var stack []string

	var walk func(cur *Node) []string
	walk = func(cur *Node) []string {
		stack = append(stack, cur.Task.ID)
		defer func() { stack = stack[:len(stack)-1] }()

		for _, depID := range sortedKeys(cur.Deps) {
			if depID == n.Task.ID {
				return append(append([]string{}, stack...), depID)
			}
			if seen[depID] {
				continue
			}
			seen[depID] = true
			if path := walk(cur.Deps[depID]); path != nil {
				return path
			}
		}
		return nil
	}

	return walk(n)
}

// cyclePath slices the DFS stack from the first occurrence of start and
// closes the loop.
func cyclePath(stack []string, start string) []string {
	for i, id := range stack {
		if id == start {
			path := append([]string{}, stack[i:]...)
			return append(path, start)
		}
	}
	// Unreachable: start is gray, so it is on the stack.
	return []string{start, start}
}

// Node returns the node for id, if present.
func (g *Graph) Node(id string) (*Node, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Tasks returns all tasks ordered by id.
func (g *Graph) Tasks() []*task.Task {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make([]*task.Task, 0, len(g.nodes))
	for _, id := range g.sortedIDs() {
		out = append(out, g.nodes[id].Task)
	}
	return out
}

// Dependencies returns the ids the given task depends on, sorted.
func (g *Graph) Dependencies(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return sortedKeys(n.Deps)
	}
	return nil
}

// Dependents returns the ids that depend on the given task, sorted.
func (g *Graph) Dependents(id string) []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	if n, ok := g.nodes[id]; ok {
		return sortedKeys(n.Dependents)
	}
	return nil
}

// sortedIDs returns every node id in lexical order. Callers hold at least
// a read lock. Map iteration order is random in Go; every externally
// visible ordering in this package goes through here to keep results
// deterministic.
func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

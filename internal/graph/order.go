package graph

import (
	"fmt"
	"sort"
	"time"
)

// TopologicalOrder returns every task id in an order that respects all
// dependency edges, computed with Kahn's algorithm over in-degree counts.
// Ids at the same depth come out in lexical order, so the result is
// deterministic for a given graph.
//
// A Graph is validated acyclic at build time, so a non-empty remainder
// after the queue drains indicates a bug, not user input.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.Deps)
	}

	var queue []string
	for _, id := range g.sortedIDs() {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		released := make([]string, 0, len(g.nodes[id].Dependents))
		for depID := range g.nodes[id].Dependents {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				released = append(released, depID)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}

	if len(order) != len(g.nodes) {
		return nil, fmt.Errorf("internal error: residual cycle after validation, ordered %d of %d tasks", len(order), len(g.nodes))
	}
	return order, nil
}

// CriticalPath returns the dependency chain with the greatest cumulative
// estimated duration, along with that total. For each task,
// earliestFinish = duration + max(earliestFinish of its dependencies),
// computed over the topological order; the chain achieving the global
// maximum is the critical path, listed in execution order.
func (g *Graph) CriticalPath() ([]string, time.Duration, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, 0, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	earliestFinish := make(map[string]time.Duration, len(order))
	prev := make(map[string]string, len(order))

	for _, id := range order {
		n := g.nodes[id]
		var longest time.Duration
		var via string
		for _, depID := range sortedKeys(n.Deps) {
			ef := earliestFinish[depID]
			if ef > longest || (ef == longest && via == "") {
				longest = ef
				via = depID
			}
		}
		earliestFinish[id] = longest + n.Task.EstDuration
		if via != "" {
			prev[id] = via
		}
	}

	var end string
	var total time.Duration
	for _, id := range order {
		if end == "" || earliestFinish[id] > total {
			end = id
			total = earliestFinish[id]
		}
	}
	if end == "" {
		return nil, 0, nil
	}

	var path []string
	for id := end; ; {
		path = append(path, id)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total, nil
}

package dag

import (
	"fmt"
	"strings"
)

// NodeSpec is the declarative input to Build: one stage name plus the names
// of the stages it depends on.
type NodeSpec struct {
	ID        string
	DependsOn []string
}

// Build constructs a graph from stage declarations, validating that every
// referenced dependency names a declared stage. Declaration order of the
// specs becomes the graph's tie-break order.
func Build(specs []NodeSpec) (*Graph, error) {
	g := New()
	for _, spec := range specs {
		g.AddNode(spec.ID)
	}
	for _, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep == spec.ID {
				return nil, fmt.Errorf("stage %q cannot depend on itself", spec.ID)
			}
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", spec.ID, dep)
			}
			if err := g.AddEdge(dep, spec.ID); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// TopoSort produces a single total order consistent with all dependency
// edges. Nodes with no ordering constraint between them keep their
// declaration order. A cycle yields an error before any ordering is
// returned.
func (g *Graph) TopoSort() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Depth-first with three-color marking: absent from both maps is
	// unvisited, inProgress is the recursion stack, done is finished.
	done := make(map[string]bool)
	inProgress := make(map[string]bool)
	order := make([]string, 0, len(g.nodes))

	var visit func(n *node) error
	visit = func(n *node) error {
		if done[n.id] {
			return nil
		}
		if inProgress[n.id] {
			return fmt.Errorf("circular dependency detected involving stage '%s'", n.id)
		}
		inProgress[n.id] = true

		// Visit dependencies in declaration order so the result is stable.
		for _, depID := range g.inDeclarationOrder(n.deps) {
			if err := visit(g.nodes[depID]); err != nil {
				return err
			}
		}

		delete(inProgress, n.id)
		done[n.id] = true
		order = append(order, n.id)
		return nil
	}

	for _, id := range g.order {
		if err := visit(g.nodes[id]); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// Groups partitions the nodes into an ordered sequence of batches such that
// every node's dependencies lie in strictly earlier batches. Within a batch,
// declaration order is preserved. If no progress can be made while nodes
// remain, the remaining nodes form at least one cycle and an error is
// returned.
func (g *Graph) Groups() ([][]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	processed := make(map[string]bool, len(g.nodes))
	var groups [][]string

	for len(processed) < len(g.nodes) {
		var batch []string
		for _, id := range g.order {
			if processed[id] {
				continue
			}
			ready := true
			for depID := range g.nodes[id].deps {
				if !processed[depID] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, id)
			}
		}

		if len(batch) == 0 {
			var remaining []string
			for _, id := range g.order {
				if !processed[id] {
					remaining = append(remaining, id)
				}
			}
			return nil, fmt.Errorf("circular dependency detected among stages: %s", strings.Join(remaining, ", "))
		}

		for _, id := range batch {
			processed[id] = true
		}
		groups = append(groups, batch)
	}

	return groups, nil
}

package engine

import (
	"fmt"
	"hash/fnv"

	"github.com/loomworks/tapestry/internal/sqlite"
	"github.com/loomworks/tapestry/pkg/types"
)

// Direction selects which way FilterMembers and Export walk the lineage
// graph.
type Direction string

const (
	DirectionChildren Direction = "children"
	DirectionParents  Direction = "parents"
	DirectionBoth     Direction = "both"
)

// ChildrenOf returns the live instances linked under the given instance,
// optionally filtered by relationship type.
func (e *Engine) ChildrenOf(id, relationship string) ([]*types.Instance, error) {
	var out []*types.Instance
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		inst, err := liveInstance(tx, id)
		if err != nil {
			return err
		}
		out, err = tx.ChildrenOf(inst.UUID, relationship)
		return err
	})
	return out, err
}

// ParentsOf returns the live instances the given instance is linked under,
// optionally filtered by relationship type.
func (e *Engine) ParentsOf(id, relationship string) ([]*types.Instance, error) {
	var out []*types.Instance
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		inst, err := liveInstance(tx, id)
		if err != nil {
			return err
		}
		out, err = tx.ParentsOf(inst.UUID, relationship)
		return err
	})
	return out, err
}

// MemberCriteria are the post-traversal predicates FilterMembers applies.
// Empty fields match everything; Properties entries must match the member's
// payload exactly.
type MemberCriteria struct {
	Category   string
	Type       string
	Subtype    string
	Status     string
	Properties map[string]any
}

func (c MemberCriteria) matches(inst *types.Instance) bool {
	if c.Category != "" && inst.Category != c.Category {
		return false
	}
	if c.Type != "" && inst.Type != c.Type {
		return false
	}
	if c.Subtype != "" && inst.Subtype != c.Subtype {
		return false
	}
	if c.Status != "" && inst.Status != c.Status {
		return false
	}
	for key, want := range c.Properties {
		got, ok := inst.Properties[key]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// FilterMembers traverses one hop from the instance in the given direction
// and keeps the members matching the criteria.
func (e *Engine) FilterMembers(id string, direction Direction, criteria MemberCriteria) ([]*types.Instance, error) {
	var out []*types.Instance
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		inst, err := liveInstance(tx, id)
		if err != nil {
			return err
		}

		var members []*types.Instance
		switch direction {
		case DirectionParents:
			members, err = tx.ParentsOf(inst.UUID, "")
		case DirectionChildren, "":
			members, err = tx.ChildrenOf(inst.UUID, "")
		case DirectionBoth:
			var parents []*types.Instance
			members, err = tx.ChildrenOf(inst.UUID, "")
			if err != nil {
				return err
			}
			parents, err = tx.ParentsOf(inst.UUID, "")
			members = append(members, parents...)
		default:
			return fmt.Errorf("%w: %q", types.ErrInvalidDirection, direction)
		}
		if err != nil {
			return err
		}

		for _, m := range members {
			if criteria.matches(m) {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// GraphNode is one instance in an exported subgraph. Color derives from the
// category so viewers render consistent hues without engine knowledge.
type GraphNode struct {
	EUID     string `json:"euid"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Status   string `json:"status"`
	Color    string `json:"color"`
}

// GraphEdge is one lineage edge in an exported subgraph. The viewer
// convention points edges from child to parent.
type GraphEdge struct {
	From         string `json:"from"` // child EUID
	To           string `json:"to"`   // parent EUID
	Relationship string `json:"relationship"`
	EUID         string `json:"euid"`
}

// Graph is a depth-bounded subgraph around one instance.
type Graph struct {
	Root  string      `json:"root"`
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// nodePalette colors graph nodes by category hash.
var nodePalette = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b2",
	"#59a14f", "#edc948", "#b07aa1", "#9c755f",
}

func categoryColor(category string) string {
	h := fnv.New32a()
	h.Write([]byte(category))
	return nodePalette[h.Sum32()%uint32(len(nodePalette))]
}

// Export breadth-first expands the lineage graph around an instance up to
// depth hops in each direction. Visited identifiers are deduplicated, so the
// walk terminates even if a manually linked edge ever formed a cycle.
func (e *Engine) Export(id string, depth int) (*Graph, error) {
	if depth < 1 {
		depth = 1
	}
	var graph *Graph
	err := e.store.WithTx(func(tx *sqlite.Tx) error {
		root, err := liveInstance(tx, id)
		if err != nil {
			return err
		}

		graph = &Graph{Root: root.EUID}
		visited := map[string]bool{root.UUID: true}
		seenEdges := map[string]bool{}
		graph.Nodes = append(graph.Nodes, toNode(root))

		frontier := []*types.Instance{root}
		for hop := 0; hop < depth && len(frontier) > 0; hop++ {
			var next []*types.Instance
			for _, inst := range frontier {
				down, err := tx.EdgesFrom(inst.UUID, "")
				if err != nil {
					return err
				}
				up, err := tx.EdgesTo(inst.UUID, "")
				if err != nil {
					return err
				}
				for _, edge := range append(down, up...) {
					neighborUUID := edge.ChildUUID
					if neighborUUID == inst.UUID {
						neighborUUID = edge.ParentUUID
					}
					neighbor, err := tx.GetInstance(neighborUUID)
					if err != nil {
						return err
					}
					if neighbor.IsDeleted {
						continue
					}
					if !seenEdges[edge.UUID] {
						seenEdges[edge.UUID] = true
						child, parent := neighbor, inst
						if edge.ChildUUID == inst.UUID {
							child, parent = inst, neighbor
						}
						graph.Edges = append(graph.Edges, GraphEdge{
							From:         child.EUID,
							To:           parent.EUID,
							Relationship: edge.RelationshipType,
							EUID:         edge.EUID,
						})
					}
					if !visited[neighbor.UUID] {
						visited[neighbor.UUID] = true
						graph.Nodes = append(graph.Nodes, toNode(neighbor))
						next = append(next, neighbor)
					}
				}
			}
			frontier = next
		}
		return nil
	})
	return graph, err
}

func toNode(inst *types.Instance) GraphNode {
	return GraphNode{
		EUID:     inst.EUID,
		UUID:     inst.UUID,
		Name:     inst.Name,
		Category: inst.Category,
		Type:     inst.Type,
		Subtype:  inst.Subtype,
		Status:   inst.Status,
		Color:    categoryColor(inst.Category),
	}
}

// SoftDeleteEdge soft-deletes a lineage edge by identifier. Endpoints are
// untouched.
func (e *Engine) SoftDeleteEdge(id string) error {
	return e.store.WithTx(func(tx *sqlite.Tx) error {
		edge, err := tx.GetEdgeByEUID(id)
		if err != nil {
			return err
		}
		return tx.SoftDeleteEdge(edge.UUID)
	})
}

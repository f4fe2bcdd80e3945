package tree

import (
	"fmt"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// Graph is an arena of nodes addressed by id. Parent and child relations are
// stored as ids, so re-parenting never touches more than two child lists.
//
// Graph is not safe for concurrent use.
type Graph struct {
	nodes  map[NodeID]*Node
	root   NodeID
	nextID NodeID
}

// NewGraph creates a graph holding only a root node with id 1.
func NewGraph(rootText, icon string) (*Graph, error) {
	text := strings.TrimSpace(rootText)
	if text == "" {
		return nil, apperr.ErrEmptyText
	}
	root := &Node{ID: 1, Text: text, Icon: strings.TrimSpace(icon), Kind: KindInternal, Expanded: true}
	return &Graph{
		nodes:  map[NodeID]*Node{root.ID: root},
		root:   root.ID,
		nextID: root.ID + 1,
	}, nil
}

// Root returns the root id.
func (g *Graph) Root() NodeID { return g.root }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NextID returns the id the next inserted node will receive.
func (g *Graph) NextID() NodeID { return g.nextID }

// SetNextID restores a persisted id counter so ids of deleted nodes stay
// retired. next must be greater than every id in the graph.
func (g *Graph) SetNextID(next NodeID) error {
	if next < g.nextID {
		return fmt.Errorf("%w: next id %d is not above existing ids (min %d)", apperr.ErrValidation, next, g.nextID)
	}
	g.nextID = next
	return nil
}

// Has reports whether id is part of the graph.
func (g *Graph) Has(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id NodeID) (Node, error) {
	n, err := g.get(id)
	if err != nil {
		return Node{}, err
	}
	return n.snapshot(), nil
}

func (g *Graph) get(id NodeID) (*Node, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", apperr.ErrNotFound, id)
	}
	return n, nil
}

// Children returns the ordered child ids of id.
func (g *Graph) Children(id NodeID) ([]NodeID, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	return n.Children(), nil
}

// Parent returns the parent of id. The root has no parent.
func (g *Graph) Parent(id NodeID) (NodeID, error) {
	n, err := g.get(id)
	if err != nil {
		return NoNode, err
	}
	if n.parent == NoNode {
		return NoNode, apperr.ErrNoParent
	}
	return n.parent, nil
}

// Ancestors returns the ancestors of id, nearest first, ending with the root.
func (g *Graph) Ancestors(id NodeID) ([]NodeID, error) {
	n, err := g.get(id)
	if err != nil {
		return nil, err
	}
	var out []NodeID
	// Bounded by the node count so a corrupted parent chain cannot loop forever.
	for p := n.parent; p != NoNode && len(out) <= len(g.nodes); {
		out = append(out, p)
		pn, ok := g.nodes[p]
		if !ok {
			break
		}
		p = pn.parent
	}
	return out, nil
}

// IsDescendant reports whether id lies strictly below ancestor.
func (g *Graph) IsDescendant(id, ancestor NodeID) bool {
	anc, err := g.Ancestors(id)
	if err != nil {
		return false
	}
	for _, a := range anc {
		if a == ancestor {
			return true
		}
	}
	return false
}

// Descendants returns every node below id in pre-order.
func (g *Graph) Descendants(id NodeID) ([]NodeID, error) {
	if _, err := g.get(id); err != nil {
		return nil, err
	}
	var out []NodeID
	_ = g.Walk(id, func(n Node, depth int) error {
		if depth > 0 {
			out = append(out, n.ID)
		}
		return nil
	})
	return out, nil
}

// Walk visits from and its subtree in pre-order. Returning an error from fn
// stops the walk and propagates the error.
func (g *Graph) Walk(from NodeID, fn func(n Node, depth int) error) error {
	n, err := g.get(from)
	if err != nil {
		return err
	}
	return g.walk(n, 0, fn)
}

func (g *Graph) walk(n *Node, depth int, fn func(Node, int) error) error {
	if err := fn(n.snapshot(), depth); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := g.walk(g.nodes[c], depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}

// indexOf returns the position of child in parent's child list, or -1.
func (g *Graph) indexOf(parent, child NodeID) int {
	p, ok := g.nodes[parent]
	if !ok {
		return -1
	}
	for i, c := range p.children {
		if c == child {
			return i
		}
	}
	return -1
}

// attachChild links child under parent at index (clamped to the list bounds).
// It does not check any invariant.
func (g *Graph) attachChild(parent, child NodeID, index int) {
	p := g.nodes[parent]
	if index < 0 || index > len(p.children) {
		index = len(p.children)
	}
	p.children = append(p.children, NoNode)
	copy(p.children[index+1:], p.children[index:])
	p.children[index] = child
	g.nodes[child].parent = parent
}

// detachChild unlinks child from parent and returns its former position, or -1
// when child was not listed. It does not check any invariant.
func (g *Graph) detachChild(parent, child NodeID) int {
	i := g.indexOf(parent, child)
	if i < 0 {
		return -1
	}
	p := g.nodes[parent]
	p.children = append(p.children[:i], p.children[i+1:]...)
	g.nodes[child].parent = NoNode
	return i
}

// Check verifies every graph invariant: single root, unique ids, acyclic,
// each non-root node listed exactly once by its parent, trimmed non-empty text
// and attachments consistent with kinds.
func (g *Graph) Check() error {
	root, ok := g.nodes[g.root]
	if !ok {
		return fmt.Errorf("%w: missing root %d", apperr.ErrValidation, g.root)
	}
	if root.parent != NoNode {
		return fmt.Errorf("%w: root %d has a parent", apperr.ErrValidation, g.root)
	}
	seen := make(map[NodeID]struct{}, len(g.nodes))
	var visit func(n *Node) error
	visit = func(n *Node) error {
		if _, dup := seen[n.ID]; dup {
			return fmt.Errorf("%w: node %d reachable twice", apperr.ErrValidation, n.ID)
		}
		seen[n.ID] = struct{}{}
		if n.ID == NoNode || n.ID >= g.nextID {
			return fmt.Errorf("%w: node id %d out of range", apperr.ErrValidation, n.ID)
		}
		if err := checkNode(n); err != nil {
			return err
		}
		for _, cid := range n.children {
			c, ok := g.nodes[cid]
			if !ok {
				return fmt.Errorf("%w: node %d lists unknown child %d", apperr.ErrValidation, n.ID, cid)
			}
			if c.parent != n.ID {
				return fmt.Errorf("%w: node %d listed under %d but parented to %d", apperr.ErrValidation, cid, n.ID, c.parent)
			}
			if err := visit(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return err
	}
	if len(seen) != len(g.nodes) {
		return fmt.Errorf("%w: %d nodes unreachable from root", apperr.ErrValidation, len(g.nodes)-len(seen))
	}
	return nil
}

func checkNode(n *Node) error {
	if n.Text == "" || n.Text != strings.TrimSpace(n.Text) {
		return fmt.Errorf("%w: node %d: text must be trimmed and non-empty", apperr.ErrValidation, n.ID)
	}
	if _, err := normalizeAttachment(n.Kind, n.Attachment); err != nil {
		return fmt.Errorf("%w: node %d: %w", apperr.ErrValidation, n.ID, err)
	}
	return nil
}

package tree

import (
	"fmt"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// Placement says where a node goes relative to an anchor.
type Placement int

// Placements. Before and After make a sibling of the anchor; First and Last a
// child of it.
const (
	Before Placement = iota
	After
	First
	Last
)

func (p Placement) String() string {
	switch p {
	case Before:
		return "before"
	case After:
		return "after"
	case First:
		return "top"
	case Last:
		return "bottom"
	default:
		return fmt.Sprintf("placement(%d)", int(p))
	}
}

// ParsePlacement accepts before, after, top|first and bottom|last.
func ParsePlacement(s string) (Placement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "before":
		return Before, nil
	case "after":
		return After, nil
	case "top", "first":
		return First, nil
	case "bottom", "last", "":
		return Last, nil
	default:
		return 0, fmt.Errorf("unknown placement %q", s)
	}
}

// IsSibling reports whether p places next to the anchor rather than inside it.
func (p Placement) IsSibling() bool { return p == Before || p == After }

// NodeSpec describes a node to insert. Kind defaults to internal.
type NodeSpec struct {
	Text       string
	Icon       string
	Kind       Kind
	Attachment *Attachment
}

func (s NodeSpec) normalize() (NodeSpec, error) {
	s.Text = strings.TrimSpace(s.Text)
	if s.Text == "" {
		return s, apperr.ErrEmptyText
	}
	s.Icon = strings.TrimSpace(s.Icon)
	if s.Kind == "" {
		s.Kind = KindInternal
	}
	att, err := normalizeAttachment(s.Kind, s.Attachment)
	if err != nil {
		return s, err
	}
	s.Attachment = att
	return s, nil
}

// target returns the parent and child index a placement relative to anchor
// resolves to, without changing anything.
func (g *Graph) target(anchor NodeID, p Placement) (NodeID, int, error) {
	a, err := g.get(anchor)
	if err != nil {
		return NoNode, 0, err
	}
	switch p {
	case First:
		return anchor, 0, nil
	case Last:
		return anchor, len(a.children), nil
	case Before, After:
		if a.parent == NoNode {
			return NoNode, 0, fmt.Errorf("%w: the root has no siblings", apperr.ErrNoParent)
		}
		i := g.indexOf(a.parent, anchor)
		if p == After {
			i++
		}
		return a.parent, i, nil
	default:
		return NoNode, 0, fmt.Errorf("unknown placement %d", int(p))
	}
}

// Insert creates a node at placement p relative to anchor and returns its id.
func (g *Graph) Insert(anchor NodeID, p Placement, ns NodeSpec) (NodeID, error) {
	ns, err := ns.normalize()
	if err != nil {
		return NoNode, err
	}
	parent, index, err := g.target(anchor, p)
	if err != nil {
		return NoNode, err
	}
	n := &Node{
		ID:         g.nextID,
		Text:       ns.Text,
		Icon:       ns.Icon,
		Kind:       ns.Kind,
		Attachment: ns.Attachment,
	}
	g.nextID++
	g.nodes[n.ID] = n
	g.attachChild(parent, n.ID, index)
	return n.ID, nil
}

// InsertAdjacent creates a sibling immediately before or after anchor.
func (g *Graph) InsertAdjacent(anchor NodeID, side Placement, ns NodeSpec) (NodeID, error) {
	if !side.IsSibling() {
		return NoNode, fmt.Errorf("insert adjacent: %s is not a sibling placement", side)
	}
	return g.Insert(anchor, side, ns)
}

// InsertChild creates the first or last child of anchor.
func (g *Graph) InsertChild(anchor NodeID, position Placement, ns NodeSpec) (NodeID, error) {
	if position.IsSibling() {
		return NoNode, fmt.Errorf("insert child: %s is not a child position", position)
	}
	return g.Insert(anchor, position, ns)
}

// Rename replaces the text of id with the trimmed text.
func (g *Graph) Rename(id NodeID, text string) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return apperr.ErrEmptyText
	}
	n.Text = text
	return nil
}

// SetIcon replaces the icon of id. An empty icon removes it.
func (g *Graph) SetIcon(id NodeID, icon string) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.Icon = strings.TrimSpace(icon)
	return nil
}

// ToggleExpanded flips the fold state of id and returns the new state.
func (g *Graph) ToggleExpanded(id NodeID) (bool, error) {
	n, err := g.get(id)
	if err != nil {
		return false, err
	}
	n.Expanded = !n.Expanded
	return n.Expanded, nil
}

// Delete removes id and its whole subtree and returns the number of nodes
// removed. Callers are expected to have confirmed the deletion.
func (g *Graph) Delete(id NodeID) (int, error) {
	n, err := g.get(id)
	if err != nil {
		return 0, err
	}
	if n.parent == NoNode {
		return 0, apperr.ErrCannotDeleteRoot
	}
	doomed, err := g.Descendants(id)
	if err != nil {
		return 0, err
	}
	g.detachChild(n.parent, id)
	delete(g.nodes, id)
	for _, d := range doomed {
		delete(g.nodes, d)
	}
	return len(doomed) + 1, nil
}

// Move re-parents id at placement p relative to dest, keeping its subtree.
func (g *Graph) Move(id, dest NodeID, p Placement) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if _, err := g.get(dest); err != nil {
		return err
	}
	if n.parent == NoNode {
		return apperr.ErrCannotMoveRoot
	}
	if dest == id || g.IsDescendant(dest, id) {
		return fmt.Errorf("%w: node %d cannot be placed relative to itself or its descendant %d", apperr.ErrCycleDetected, id, dest)
	}
	// Validate the destination before touching anything.
	if _, _, err := g.target(dest, p); err != nil {
		return err
	}

	g.detachChild(n.parent, id)
	// Indices are recomputed after detaching since id may have been a sibling of dest.
	parent, index, err := g.target(dest, p)
	if err != nil {
		return err
	}
	g.attachChild(parent, id, index)
	return nil
}

// SetData turns id into a data node backed by relPath. An empty relPath picks
// the deterministic default location for the node.
func (g *Graph) SetData(id NodeID, relPath string, ct ContentType) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if ct == "" {
		ct = ContentMarkdown
	}
	if strings.TrimSpace(relPath) == "" {
		relPath = DefaultDataPath(id, ct)
	}
	att, err := normalizeAttachment(KindData, &Attachment{Path: relPath, ContentType: ct})
	if err != nil {
		return err
	}
	n.Kind, n.Attachment = KindData, att
	return nil
}

// SetURL turns id into a url node pointing at link.
func (g *Graph) SetURL(id NodeID, link string) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	att, err := normalizeAttachment(KindURL, &Attachment{Link: link})
	if err != nil {
		return err
	}
	n.Kind, n.Attachment = KindURL, att
	return nil
}

// ClearAttachment turns id back into an internal node.
func (g *Graph) ClearAttachment(id NodeID) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	n.Kind, n.Attachment = KindInternal, nil
	return nil
}

// ConvertKind changes the kind of id, dropping any payload the new kind
// cannot carry. Converting to data assigns the default file location;
// converting to url needs a link and goes through SetURL.
func (g *Graph) ConvertKind(id NodeID, kind Kind) error {
	n, err := g.get(id)
	if err != nil {
		return err
	}
	if n.Kind == kind {
		return nil
	}
	switch kind {
	case KindInternal:
		return g.ClearAttachment(id)
	case KindData:
		return g.SetData(id, "", ContentMarkdown)
	case KindURL:
		return fmt.Errorf("%w: converting to url requires a link", apperr.ErrInvalidAttachment)
	default:
		return fmt.Errorf("%w: unknown node kind %q", apperr.ErrInvalidAttachment, kind)
	}
}

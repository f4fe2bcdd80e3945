package tree

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// Record is the nested, order-preserving form of a subtree. Codecs translate
// their wire shapes to and from it.
type Record struct {
	ID         NodeID
	Text       string
	Icon       string
	Kind       Kind
	Attachment *Attachment
	Expanded   bool
	Children   []Record
}

// FromRecord builds a graph from a nested record. Text and icons are trimmed;
// any invariant violation is reported as apperr.ErrValidation.
func FromRecord(rec Record) (*Graph, error) {
	g := &Graph{nodes: make(map[NodeID]*Node), root: rec.ID}
	var build func(r Record, parent NodeID) error
	build = func(r Record, parent NodeID) error {
		if r.ID == NoNode {
			return fmt.Errorf("%w: node id must be positive", apperr.ErrValidation)
		}
		if _, dup := g.nodes[r.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %d", apperr.ErrValidation, r.ID)
		}
		kind := r.Kind
		if kind == "" {
			kind = KindInternal
		}
		att, err := normalizeAttachment(kind, r.Attachment)
		if err != nil {
			return fmt.Errorf("%w: node %d: %w", apperr.ErrValidation, r.ID, err)
		}
		text := strings.TrimSpace(r.Text)
		if text == "" {
			return fmt.Errorf("%w: node %d: %w", apperr.ErrValidation, r.ID, apperr.ErrEmptyText)
		}
		n := &Node{
			ID:         r.ID,
			Text:       text,
			Icon:       strings.TrimSpace(r.Icon),
			Kind:       kind,
			Attachment: att,
			Expanded:   r.Expanded,
			parent:     parent,
			children:   make([]NodeID, 0, len(r.Children)),
		}
		g.nodes[n.ID] = n
		if n.ID >= g.nextID {
			g.nextID = n.ID + 1
		}
		for _, c := range r.Children {
			if err := build(c, n.ID); err != nil {
				return err
			}
			n.children = append(n.children, c.ID)
		}
		return nil
	}
	if err := build(rec, NoNode); err != nil {
		return nil, err
	}
	if err := g.Check(); err != nil {
		return nil, err
	}
	return g, nil
}

// Record returns the nested form of the subtree rooted at id.
func (g *Graph) Record(id NodeID) (Record, error) {
	n, err := g.get(id)
	if err != nil {
		return Record{}, err
	}
	return g.record(n), nil
}

func (g *Graph) record(n *Node) Record {
	r := Record{
		ID:         n.ID,
		Text:       n.Text,
		Icon:       n.Icon,
		Kind:       n.Kind,
		Attachment: n.Attachment.clone(),
		Expanded:   n.Expanded,
	}
	for _, c := range n.children {
		r.Children = append(r.Children, g.record(g.nodes[c]))
	}
	return r
}

// Category classifies where a tree lives.
type Category string

// Tree categories.
const (
	CategoryGlobal        Category = "global"
	CategoryLocalProject  Category = "local-project"
	CategoryGlobalProject Category = "global-project"
)

// ParseCategory maps a persisted category onto the fixed enumeration.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.TrimSpace(s)); c {
	case CategoryGlobal, CategoryLocalProject, CategoryGlobalProject:
		return c, nil
	case "":
		return CategoryGlobal, nil
	default:
		return "", fmt.Errorf("unknown tree category %q", s)
	}
}

// CurrentVersion is the schema version written by encoders.
const CurrentVersion = 2

// Tree is a graph plus its storage metadata.
type Tree struct {
	Version  int
	Category Category
	// Location is the absolute path of the tree file.
	Location string
	Graph    *Graph

	// MigratedFrom is the schema version the tree was upgraded from when it
	// was decoded, or zero.
	MigratedFrom int
}

// New creates an empty tree of the given category whose root carries name.
func New(name, icon string, category Category, location string) (*Tree, error) {
	g, err := NewGraph(name, icon)
	if err != nil {
		return nil, err
	}
	return &Tree{Version: CurrentVersion, Category: category, Location: location, Graph: g}, nil
}

// StorageRoot is the directory data node paths are resolved against.
func (t *Tree) StorageRoot() string {
	return filepath.Dir(t.Location)
}

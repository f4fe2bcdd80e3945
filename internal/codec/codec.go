// Package codec reads and writes the persisted JSON form of a tree. Legacy
// version 1 documents are upgraded on decode; encoding always emits the
// current version.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/tree"
)

// document is the version 2 wire shape. NextID is the id the next inserted
// node receives; documents without it fall back to the largest id plus one.
type document struct {
	Version  int    `json:"version"`
	Category string `json:"category"`
	NextID   uint64 `json:"next_id,omitempty"`
	Root     *node  `json:"root"`
}

type node struct {
	ID         uint64      `json:"id"`
	Text       string      `json:"text"`
	Icon       string      `json:"icon,omitempty"`
	Kind       string      `json:"kind"`
	Expanded   bool        `json:"expanded,omitempty"`
	Attachment *attachment `json:"attachment,omitempty"`
	Children   []node      `json:"children,omitempty"`
}

type attachment struct {
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Link        string `json:"link,omitempty"`
}

// versionHeader reads only the version tag so the right shape can be chosen.
type versionHeader struct {
	Version *int `json:"version"`
}

// Decode parses data into a tree. Malformed input yields apperr.ErrParse and
// a structure violating graph invariants yields apperr.ErrValidation. The
// returned tree carries no Location; callers set it.
func Decode(data []byte) (*tree.Tree, error) {
	var p versionHeader
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, parseErr(err)
	}
	version := 1
	if p.Version != nil {
		version = *p.Version
	}

	switch version {
	case 1:
		t, err := decodeV1(data)
		if err != nil {
			return nil, err
		}
		t.MigratedFrom = 1
		return t, nil
	case tree.CurrentVersion:
		return decodeV2(data)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", apperr.ErrParse, version)
	}
}

func decodeV2(data []byte) (*tree.Tree, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, parseErr(err)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("%w: missing root", apperr.ErrParse)
	}
	category, err := tree.ParseCategory(doc.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrParse, err)
	}
	rec, err := fromWire(*doc.Root)
	if err != nil {
		return nil, err
	}
	g, err := tree.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	if doc.NextID != 0 {
		if err := g.SetNextID(tree.NodeID(doc.NextID)); err != nil {
			return nil, err
		}
	}
	return &tree.Tree{Version: tree.CurrentVersion, Category: category, Graph: g}, nil
}

func fromWire(n node) (tree.Record, error) {
	kind, err := tree.ParseKind(n.Kind)
	if err != nil {
		return tree.Record{}, fmt.Errorf("%w: node %d: %w", apperr.ErrParse, n.ID, err)
	}
	rec := tree.Record{
		ID:       tree.NodeID(n.ID),
		Text:     n.Text,
		Icon:     n.Icon,
		Kind:     kind,
		Expanded: n.Expanded,
	}
	if a := n.Attachment; a != nil {
		rec.Attachment = &tree.Attachment{
			Path:        a.Path,
			ContentType: tree.ContentType(a.ContentType),
			Link:        a.Link,
		}
	}
	for _, c := range n.Children {
		child, err := fromWire(c)
		if err != nil {
			return tree.Record{}, err
		}
		rec.Children = append(rec.Children, child)
	}
	return rec, nil
}

// Encode writes t in the current schema version with two-space indentation.
// The output is canonical: empty icons, collapsed state and empty child lists
// are omitted, and data attachments always name their content type.
func Encode(t *tree.Tree) ([]byte, error) {
	if t == nil || t.Graph == nil {
		return nil, errors.New("codec: nil tree")
	}
	rec, err := t.Graph.Record(t.Graph.Root())
	if err != nil {
		return nil, err
	}
	category := t.Category
	if category == "" {
		category = tree.CategoryGlobal
	}
	root := toWire(rec)
	doc := document{
		Version:  tree.CurrentVersion,
		Category: string(category),
		NextID:   uint64(t.Graph.NextID()),
		Root:     &root,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toWire(rec tree.Record) node {
	n := node{
		ID:       uint64(rec.ID),
		Text:     rec.Text,
		Icon:     rec.Icon,
		Kind:     string(rec.Kind),
		Expanded: rec.Expanded,
	}
	if a := rec.Attachment; a != nil {
		n.Attachment = &attachment{
			Path:        a.Path,
			ContentType: string(a.ContentType),
			Link:        a.Link,
		}
	}
	for _, c := range rec.Children {
		n.Children = append(n.Children, toWire(c))
	}
	return n
}

func parseErr(err error) error {
	return fmt.Errorf("%w: %w", apperr.ErrParse, err)
}

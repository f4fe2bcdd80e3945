package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/tree"
)

// legacyTree is the version 1 document: the root node flattened into the
// top-level object next to an integer tree type.
type legacyTree struct {
	legacyNode
	// Type shadows the node-level type of the embedded root.
	Type json.RawMessage `json:"type"`
}

type legacyNode struct {
	Icon       string          `json:"icon"`
	IsExpanded bool            `json:"is_expanded"`
	Contents   []legacyText    `json:"contents"`
	Type       json.RawMessage `json:"type"`
	Data       string          `json:"data"`
	Children   []legacyNode    `json:"children"`
}

type legacyText struct {
	Text string `json:"text"`
}

// Legacy tree types.
const (
	legacyRoot  = 0
	legacyLocal = 1
)

var legacyKinds = map[string]tree.Kind{
	"":         tree.KindInternal,
	"node":     tree.KindInternal,
	"text":     tree.KindInternal,
	"internal": tree.KindInternal,
	"file":     tree.KindData,
	"data":     tree.KindData,
	"path":     tree.KindData,
	"url":      tree.KindURL,
	"uri":      tree.KindURL,
	"link":     tree.KindURL,
}

func decodeV1(data []byte) (*tree.Tree, error) {
	var lt legacyTree
	if err := json.Unmarshal(data, &lt); err != nil {
		return nil, parseErr(err)
	}

	category := tree.CategoryGlobal
	if len(lt.Type) > 0 && !isNull(lt.Type) {
		var ty int
		if err := json.Unmarshal(lt.Type, &ty); err != nil {
			return nil, fmt.Errorf("%w: tree type: %w", apperr.ErrParse, err)
		}
		switch ty {
		case legacyRoot:
		case legacyLocal:
			category = tree.CategoryLocalProject
		default:
			return nil, fmt.Errorf("%w: unknown tree type %d", apperr.ErrParse, ty)
		}
	}

	// The root is always a plain node; the top-level type tags the tree.
	root := lt.legacyNode
	root.Type = nil

	next := tree.NodeID(1)
	rec, err := upgrade(root, &next)
	if err != nil {
		return nil, err
	}
	g, err := tree.FromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &tree.Tree{Version: tree.CurrentVersion, Category: category, Graph: g}, nil
}

// upgrade converts a legacy node into a record, numbering nodes in pre-order.
func upgrade(n legacyNode, next *tree.NodeID) (tree.Record, error) {
	id := *next
	*next++

	if n.Contents == nil {
		return tree.Record{}, fmt.Errorf("%w: node %d: missing contents", apperr.ErrParse, id)
	}
	// Later entries override earlier ones.
	var text string
	if len(n.Contents) > 0 {
		text = n.Contents[len(n.Contents)-1].Text
	}

	kind, err := legacyKind(n.Type)
	if err != nil {
		return tree.Record{}, fmt.Errorf("%w: node %d: %w", apperr.ErrParse, id, err)
	}
	rec := tree.Record{
		ID:       id,
		Text:     text,
		Icon:     n.Icon,
		Kind:     kind,
		Expanded: n.IsExpanded,
	}
	switch kind {
	case tree.KindData:
		ct, err := tree.ParseContentType(path.Ext(n.Data))
		if err != nil {
			ct = tree.ContentMarkdown
		}
		rec.Attachment = &tree.Attachment{Path: n.Data, ContentType: ct}
	case tree.KindURL:
		rec.Attachment = &tree.Attachment{Link: n.Data}
	default:
		if n.Data != "" {
			return tree.Record{}, fmt.Errorf("%w: node %d: internal node carries data %q", apperr.ErrParse, id, n.Data)
		}
	}

	for _, c := range n.Children {
		child, err := upgrade(c, next)
		if err != nil {
			return tree.Record{}, err
		}
		rec.Children = append(rec.Children, child)
	}
	return rec, nil
}

func legacyKind(raw json.RawMessage) (tree.Kind, error) {
	if len(raw) == 0 || isNull(raw) {
		return tree.KindInternal, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("node type must be a string: %w", err)
	}
	kind, ok := legacyKinds[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown legacy node type %q", s)
	}
	return kind, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

package tree

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// FileStore creates and locates data files relative to a tree's storage root.
type FileStore interface {
	Exists(rel string) (bool, error)
	Write(rel string, content []byte) error
	Delete(rel string) error
	Abs(rel string) (string, error)
}

// Templates holds the initial content of new data files per content type.
// ${id}, ${text} and ${content_type} are expanded.
type Templates map[ContentType]string

// Render returns the initial file content for n. Missing templates yield an
// empty file.
func (t Templates) Render(n Node, ct ContentType) []byte {
	tmpl, ok := t[ct]
	if !ok || tmpl == "" {
		return nil
	}
	return []byte(os.Expand(tmpl, func(key string) string {
		switch key {
		case "id":
			return strconv.FormatUint(uint64(n.ID), 10)
		case "text":
			return n.Text
		case "content_type":
			return string(ct)
		default:
			return ""
		}
	}))
}

// maxDataSkips bounds how many occupied data file names InsertData skips.
const maxDataSkips = 1024

// InsertData creates a data node at placement p relative to anchor together
// with its backing file data/<id><ext>. It returns the node id and the
// absolute file path. Nothing is left behind when either step fails.
func (g *Graph) InsertData(anchor NodeID, p Placement, text string, ct ContentType, files FileStore, tmpl Templates) (NodeID, string, error) {
	if ct == "" {
		ct = ContentMarkdown
	}
	if !ct.Valid() {
		return NoNode, "", fmt.Errorf("%w: unknown content type %q", apperr.ErrInvalidAttachment, ct)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return NoNode, "", apperr.ErrEmptyText
	}
	if _, _, err := g.target(anchor, p); err != nil {
		return NoNode, "", err
	}

	// Ids whose default file is taken by someone else are skipped; existing
	// files are never overwritten.
	start := g.nextID
	id := start
	var rel string
	for {
		rel = DefaultDataPath(id, ct)
		exists, err := files.Exists(rel)
		if err != nil {
			return NoNode, "", err
		}
		if !exists {
			break
		}
		if id-start >= maxDataSkips {
			return NoNode, "", fmt.Errorf("%w: data file %s", apperr.ErrAlreadyExists, rel)
		}
		id++
	}
	if err := files.Write(rel, tmpl.Render(Node{ID: id, Text: text}, ct)); err != nil {
		return NoNode, "", err
	}

	g.nextID = id
	got, err := g.Insert(anchor, p, NodeSpec{
		Text:       text,
		Kind:       KindData,
		Attachment: &Attachment{Path: rel, ContentType: ct},
	})
	if err != nil {
		g.nextID = start
		_ = files.Delete(rel)
		return NoNode, "", err
	}
	abs, err := files.Abs(rel)
	if err != nil {
		return got, "", err
	}
	return got, abs, nil
}

// Target is what an external opener receives for a node.
type Target struct {
	Kind Kind
	// Path is absolute; set for data nodes.
	Path string
	// Link is verbatim; set for url nodes.
	Link string
	// Created is true when the data file did not exist and was just created.
	Created bool
}

// OpenTarget resolves the attachment of id for an external opener. A missing
// data file is created first.
func (g *Graph) OpenTarget(id NodeID, files FileStore, tmpl Templates) (Target, error) {
	n, err := g.get(id)
	if err != nil {
		return Target{}, err
	}
	switch n.Kind {
	case KindURL:
		return Target{Kind: KindURL, Link: n.Attachment.Link}, nil
	case KindData:
		ct := n.Attachment.ContentType
		if ct == "" {
			ct = ContentMarkdown
		}
		t := Target{Kind: KindData}
		exists, err := files.Exists(n.Attachment.Path)
		if err != nil {
			return Target{}, err
		}
		if !exists {
			if err := files.Write(n.Attachment.Path, tmpl.Render(n.snapshot(), ct)); err != nil {
				return Target{}, err
			}
			t.Created = true
		}
		if t.Path, err = files.Abs(n.Attachment.Path); err != nil {
			return Target{}, err
		}
		return t, nil
	default:
		return Target{}, fmt.Errorf("%w: node %d", apperr.ErrNoAttachment, id)
	}
}

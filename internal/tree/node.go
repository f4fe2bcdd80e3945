// Package tree implements the in-memory node graph of a mind tree together with
// path resolution, mutations and data attachments.
package tree

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// NodeID identifies a node within one tree. Zero is never a valid id.
type NodeID uint64

// NoNode is the parent of the root.
const NoNode NodeID = 0

// Kind tags what a node carries besides its text.
type Kind string

// Node kinds.
const (
	KindInternal Kind = "internal"
	KindData     Kind = "data"
	KindURL      Kind = "url"
)

// ParseKind maps a persisted kind string onto the fixed enumeration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindInternal, KindData, KindURL:
		return k, nil
	case "":
		return KindInternal, nil
	default:
		return "", fmt.Errorf("unknown node kind %q", s)
	}
}

// ContentType describes the format of a data node's backing file.
type ContentType string

// Supported content types.
const (
	ContentMarkdown ContentType = "markdown"
	ContentText     ContentType = "text"
	ContentOrg      ContentType = "org"
	ContentJSON     ContentType = "json"
)

var contentExt = map[ContentType]string{
	ContentMarkdown: ".md",
	ContentText:     ".txt",
	ContentOrg:      ".org",
	ContentJSON:     ".json",
}

// Ext returns the file extension (with dot) for the content type.
func (c ContentType) Ext() string {
	if ext, ok := contentExt[c]; ok {
		return ext
	}
	return contentExt[ContentMarkdown]
}

// Valid reports whether c is one of the supported content types.
func (c ContentType) Valid() bool {
	_, ok := contentExt[c]
	return ok
}

// ParseContentType accepts a content type name or a bare extension ("md").
// Empty input yields markdown.
func ParseContentType(s string) (ContentType, error) {
	s = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if s == "" {
		return ContentMarkdown, nil
	}
	if ct := ContentType(s); ct.Valid() {
		return ct, nil
	}
	for ct, ext := range contentExt {
		if ext[1:] == s {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w: unknown content type %q", apperr.ErrInvalidAttachment, s)
}

// Attachment is the payload of a data or url node. Path is relative to the
// tree's storage root and only set on data nodes; Link is kept verbatim and only
// set on url nodes.
type Attachment struct {
	Path        string
	ContentType ContentType
	Link        string
}

func (a *Attachment) clone() *Attachment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Node is a single tree element. Values returned by Graph are copies; edits go
// through the mutation methods.
type Node struct {
	ID         NodeID
	Text       string
	Icon       string
	Kind       Kind
	Attachment *Attachment
	Expanded   bool

	parent   NodeID
	children []NodeID
}

// Parent returns the parent id, or NoNode for the root.
func (n Node) Parent() NodeID { return n.parent }

// Children returns the ordered child ids.
func (n Node) Children() []NodeID {
	out := make([]NodeID, len(n.children))
	copy(out, n.children)
	return out
}

// IsRoot reports whether the node has no parent.
func (n Node) IsRoot() bool { return n.parent == NoNode }

func (n *Node) snapshot() Node {
	c := *n
	c.Attachment = n.Attachment.clone()
	c.children = n.Children()
	return c
}

// DefaultDataPath is the deterministic location of a data node's backing file.
func DefaultDataPath(id NodeID, ct ContentType) string {
	return filepath.ToSlash(filepath.Join("data", fmt.Sprintf("%d%s", id, ct.Ext())))
}

// normalizeAttachment checks that att fits kind and returns a cleaned copy.
func normalizeAttachment(kind Kind, att *Attachment) (*Attachment, error) {
	switch kind {
	case KindInternal:
		if att != nil && (att.Path != "" || att.Link != "") {
			return nil, fmt.Errorf("%w: internal node cannot carry an attachment", apperr.ErrInvalidAttachment)
		}
		return nil, nil
	case KindData:
		if att == nil {
			return nil, fmt.Errorf("%w: data node requires a file path", apperr.ErrInvalidAttachment)
		}
		p := strings.TrimSpace(att.Path)
		if p == "" {
			return nil, fmt.Errorf("%w: data node requires a file path", apperr.ErrInvalidAttachment)
		}
		if !filepath.IsLocal(filepath.FromSlash(p)) {
			return nil, fmt.Errorf("%w: data path %q escapes the storage root", apperr.ErrInvalidAttachment, p)
		}
		if att.Link != "" {
			return nil, fmt.Errorf("%w: data node cannot carry a link", apperr.ErrInvalidAttachment)
		}
		ct := att.ContentType
		if ct == "" {
			ct = ContentMarkdown
		}
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: unknown content type %q", apperr.ErrInvalidAttachment, ct)
		}
		return &Attachment{Path: filepath.ToSlash(p), ContentType: ct}, nil
	case KindURL:
		if att == nil || strings.TrimSpace(att.Link) == "" {
			return nil, fmt.Errorf("%w: url node requires a link", apperr.ErrInvalidAttachment)
		}
		if att.Path != "" {
			return nil, fmt.Errorf("%w: url node cannot carry a file path", apperr.ErrInvalidAttachment)
		}
		return &Attachment{Link: att.Link}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %q", apperr.ErrInvalidAttachment, kind)
	}
}

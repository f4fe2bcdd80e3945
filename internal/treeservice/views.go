package treeservice

import (
	"github.com/starford/mind/internal/selector"
	"github.com/starford/mind/internal/tree"
)

// NodeView is the external representation of a node.
type NodeView struct {
	ID         uint64          `json:"id"`
	Text       string          `json:"text"`
	Icon       string          `json:"icon,omitempty"`
	Kind       string          `json:"kind"`
	Expanded   bool            `json:"expanded"`
	Path       string          `json:"path"`
	Attachment *AttachmentView `json:"attachment,omitempty"`
	Children   []NodeView      `json:"children,omitempty"`
}

// AttachmentView is the payload of a data or url node.
type AttachmentView struct {
	Path        string `json:"path,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Link        string `json:"link,omitempty"`
}

// TreeView is a whole tree plus the version it was read from.
type TreeView struct {
	Category string   `json:"category"`
	Location string   `json:"location"`
	Checksum string   `json:"checksum"`
	Root     NodeView `json:"root"`
}

// TreeInfo describes one tree reachable from a working directory.
type TreeInfo struct {
	Category string `json:"category"`
	Location string `json:"location"`
	Cwd      string `json:"cwd,omitempty"`
	Exists   bool   `json:"exists"`
	Active   bool   `json:"active"`
}

// Inserted is returned by Insert. File is set when a data file was created.
type Inserted struct {
	Node NodeView `json:"node"`
	File string   `json:"file,omitempty"`
}

// Opened is what an external opener receives for a node.
type Opened struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Link    string `json:"link,omitempty"`
	Created bool   `json:"created"`
}

func nodeView(g *tree.Graph, id tree.NodeID, depth int) (NodeView, error) {
	n, err := g.Node(id)
	if err != nil {
		return NodeView{}, err
	}
	p, err := g.PathOf(id, false)
	if err != nil {
		return NodeView{}, err
	}
	v := NodeView{
		ID:       uint64(n.ID),
		Text:     n.Text,
		Icon:     n.Icon,
		Kind:     string(n.Kind),
		Expanded: n.Expanded,
		Path:     p,
	}
	if a := n.Attachment; a != nil {
		v.Attachment = &AttachmentView{Path: a.Path, ContentType: string(a.ContentType), Link: a.Link}
	}
	if depth == 0 {
		return v, nil
	}
	for _, c := range n.Children() {
		cv, err := nodeView(g, c, depth-1)
		if err != nil {
			return NodeView{}, err
		}
		v.Children = append(v.Children, cv)
	}
	return v, nil
}

func treeInfo(in selector.TreeInfo) TreeInfo {
	return TreeInfo{
		Category: string(in.Category),
		Location: in.Path,
		Cwd:      in.Cwd,
		Exists:   in.Exists,
		Active:   in.Active,
	}
}

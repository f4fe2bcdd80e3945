package tree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/mind/internal/apperr"
)

// idSegmentRe matches "<id>:" optionally followed by a space and descriptive text.
var idSegmentRe = regexp.MustCompile(`^(\d+):(?: (.*))?$`)

// Resolution is the outcome of resolving interactive input: either a node or
// an explicit cancellation. Failures are reported as errors instead.
type Resolution struct {
	ID        NodeID
	Cancelled bool
}

// Err returns apperr.ErrResolutionCancelled for a cancelled resolution.
func (r Resolution) Err() error {
	if r.Cancelled {
		return apperr.ErrResolutionCancelled
	}
	return nil
}

// SplitPath returns the non-empty segments of a slash path.
func SplitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Resolve walks path from the root. "/" (or an empty path) is the root.
// A segment "<id>: text" matches the child with that id and ignores the text;
// any other segment must equal the text of exactly one child.
func (g *Graph) Resolve(path string) (NodeID, error) {
	cur := g.root
	for _, seg := range SplitPath(path) {
		next, err := g.resolveSegment(cur, seg)
		if err != nil {
			return NoNode, fmt.Errorf("resolve %q: %w", path, err)
		}
		cur = next
	}
	return cur, nil
}

func (g *Graph) resolveSegment(parent NodeID, seg string) (NodeID, error) {
	p := g.nodes[parent]
	if m := idSegmentRe.FindStringSubmatch(seg); m != nil {
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return NoNode, fmt.Errorf("%w: segment %q", apperr.ErrPathNotFound, seg)
		}
		for _, c := range p.children {
			if c == NodeID(id) {
				return c, nil
			}
		}
		return NoNode, fmt.Errorf("%w: no child with id %d under %q", apperr.ErrPathNotFound, id, p.Text)
	}

	found := NoNode
	for _, c := range p.children {
		if g.nodes[c].Text != seg {
			continue
		}
		if found != NoNode {
			return NoNode, fmt.Errorf("%w: several children of %q are named %q", apperr.ErrPathAmbiguous, p.Text, seg)
		}
		found = c
	}
	if found == NoNode {
		return NoNode, fmt.Errorf("%w: no child %q under %q", apperr.ErrPathNotFound, seg, p.Text)
	}
	return found, nil
}

// ResolveInput resolves a path typed at an interactive prompt. Empty input is
// an abort and yields a cancelled resolution, never the root.
func (g *Graph) ResolveInput(input string) (Resolution, error) {
	if strings.TrimSpace(input) == "" {
		return Resolution{Cancelled: true}, nil
	}
	id, err := g.Resolve(input)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{ID: id}, nil
}

// PathOf renders the absolute path of id. With withIDs every segment carries
// its id prefix, which always resolves back to the same node.
func (g *Graph) PathOf(id NodeID, withIDs bool) (string, error) {
	n, err := g.get(id)
	if err != nil {
		return "", err
	}
	if n.parent == NoNode {
		return "/", nil
	}
	anc, err := g.Ancestors(id)
	if err != nil {
		return "", err
	}
	segs := make([]string, 0, len(anc))
	// anc ends with the root, which has no segment.
	for i := len(anc) - 2; i >= 0; i-- {
		segs = append(segs, segment(g.nodes[anc[i]], withIDs))
	}
	segs = append(segs, segment(n, withIDs))
	return "/" + strings.Join(segs, "/"), nil
}

func segment(n *Node, withID bool) string {
	if withID {
		return fmt.Sprintf("%d: %s", n.ID, n.Text)
	}
	return n.Text
}

// PathOptions tunes Paths.
type PathOptions struct {
	WithIDs bool
	// Kinds keeps only nodes of these kinds; empty keeps everything.
	Kinds []Kind
}

func (o PathOptions) keep(k Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Paths lists the absolute path of from and every node below it, in pre-order.
func (g *Graph) Paths(from NodeID, opts PathOptions) ([]string, error) {
	base, err := g.PathOf(from, opts.WithIDs)
	if err != nil {
		return nil, err
	}
	var out []string
	var rec func(n *Node, prefix string)
	rec = func(n *Node, prefix string) {
		if opts.keep(n.Kind) {
			out = append(out, prefix)
		}
		for _, c := range n.children {
			child := g.nodes[c]
			rec(child, strings.TrimSuffix(prefix, "/")+"/"+segment(child, opts.WithIDs))
		}
	}
	rec(g.nodes[from], base)
	return out, nil
}

// NodeAtLine maps a 0-based line of the rendered tree to a node. The root is
// line 0 and children of collapsed nodes are not rendered.
func (g *Graph) NodeAtLine(line int) (NodeID, bool) {
	if line < 0 {
		return NoNode, false
	}
	var visit func(n *Node) (NodeID, bool)
	visit = func(n *Node) (NodeID, bool) {
		if line == 0 {
			return n.ID, true
		}
		line--
		if !n.Expanded {
			return NoNode, false
		}
		for _, c := range n.children {
			if id, ok := visit(g.nodes[c]); ok {
				return id, true
			}
		}
		return NoNode, false
	}
	return visit(g.nodes[g.root])
}

package treeservice

import (
	"fmt"
	"io"
	"strings"
)

// RenderOptions controls RenderText.
type RenderOptions struct {
	WithIDs bool
}

// RenderText writes v and its loaded descendants as an indented tree.
func RenderText(w io.Writer, v NodeView, opts RenderOptions) error {
	if _, err := fmt.Fprintln(w, label(v, opts)); err != nil {
		return err
	}
	return renderChildren(w, v.Children, "", opts)
}

func renderChildren(w io.Writer, children []NodeView, prefix string, opts RenderOptions) error {
	for i, c := range children {
		branch, next := "├── ", "│   "
		if i == len(children)-1 {
			branch, next = "└── ", "    "
		}
		if _, err := fmt.Fprintln(w, prefix+branch+label(c, opts)); err != nil {
			return err
		}
		if err := renderChildren(w, c.Children, prefix+next, opts); err != nil {
			return err
		}
	}
	return nil
}

func label(v NodeView, opts RenderOptions) string {
	var b strings.Builder
	if opts.WithIDs {
		fmt.Fprintf(&b, "%d: ", v.ID)
	}
	if v.Icon != "" {
		b.WriteString(v.Icon)
		b.WriteByte(' ')
	}
	b.WriteString(v.Text)
	if a := v.Attachment; a != nil {
		switch {
		case a.Link != "":
			fmt.Fprintf(&b, " <%s>", a.Link)
		case a.Path != "":
			fmt.Fprintf(&b, " [%s]", a.Path)
		}
	}
	return b.String()
}

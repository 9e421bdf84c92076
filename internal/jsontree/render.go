package jsontree

import (
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
)

const (
	markOpen   = "▾"
	markClosed = "▸"
)

// Line is one visible row of a rendered tree.
type Line struct {
	Path       []string
	Depth      int
	Text       string
	Disclosure bool
	Expanded   bool
}

// Row formats a node as "key: label" with a disclosure marker.
func Row(n *Node) string {
	var b strings.Builder
	if n.Disclosure() {
		if n.Expanded {
			b.WriteString(markOpen)
		} else {
			b.WriteString(markClosed)
		}
		b.WriteByte(' ')
	}
	if n.Key != "" {
		b.WriteString(n.Key)
		b.WriteString(": ")
	}
	b.WriteString(n.Label())
	return b.String()
}

// Lines flattens the visible rows in display order.
func Lines(root *Node) []Line {
	var out []Line
	var walk func(n *Node, path []string, depth int)
	walk = func(n *Node, path []string, depth int) {
		out = append(out, Line{
			Path:       path,
			Depth:      depth,
			Text:       Row(n),
			Disclosure: n.Disclosure(),
			Expanded:   n.Expanded,
		})
		if !n.Disclosure() || !n.Expanded {
			return
		}
		for _, c := range n.Children {
			childPath := make([]string, len(path), len(path)+1)
			copy(childPath, path)
			walk(c, append(childPath, c.Key), depth+1)
		}
	}
	walk(root, nil, 0)
	return out
}

// Render writes the visible tree using connected list guides.
func Render(w io.Writer, root *Node) error {
	lw := list.NewWriter()
	lw.SetStyle(list.StyleConnectedRounded)
	var walk func(n *Node)
	walk = func(n *Node) {
		lw.AppendItem(Row(n))
		if !n.Disclosure() || !n.Expanded {
			return
		}
		lw.Indent()
		for _, c := range n.Children {
			walk(c)
		}
		lw.UnIndent()
	}
	walk(root)
	_, err := io.WriteString(w, lw.Render()+"\n")
	return err
}

// Text renders the tree to a string.
func Text(root *Node) string {
	var b strings.Builder
	_ = Render(&b, root)
	return b.String()
}

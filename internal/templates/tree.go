package templates

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"exam-portal/internal/models"
)

var (
	ErrInvalidType  = errors.New("invalid node type")
	ErrDuplicateID  = errors.New("duplicate node id")
	ErrLeafChildren = errors.New("template node has children")
	ErrEmptyID      = errors.New("node id is empty")
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func (d Direction) Valid() bool { return d == Up || d == Down }

// Tree is an ordered list of root nodes. Every operation below returns a new Tree and leaves
// its input untouched; only the nodes on the path to the change are copied.
type Tree []models.TemplateNode

// NewNode allocates a node with a fresh id. Folders start with an empty child list.
func NewNode(name string, typ models.NodeType) models.TemplateNode {
	n := models.TemplateNode{
		ID:   uuid.NewString(),
		Name: name,
		Type: typ,
	}
	if typ == models.NodeFolder {
		n.Children = []models.TemplateNode{}
	}
	return n
}

func AddRoot(t Tree, node models.TemplateNode) Tree {
	out := make(Tree, 0, len(t)+1)
	out = append(out, t...)
	return append(out, node)
}

// AddChild appends node to the children of the folder with parentID.
func AddChild(t Tree, parentID string, node models.TemplateNode) (Tree, bool) {
	nodes, ok := updateNode(t, parentID, func(n models.TemplateNode) (models.TemplateNode, bool) {
		if !n.IsFolder() {
			return n, false
		}
		children := make([]models.TemplateNode, 0, len(n.Children)+1)
		children = append(children, n.Children...)
		n.Children = append(children, node)
		return n, true
	})
	return Tree(nodes), ok
}

func Rename(t Tree, id, name string) (Tree, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return t, false
	}
	nodes, ok := updateNode(t, id, func(n models.TemplateNode) (models.TemplateNode, bool) {
		if n.Name == name {
			return n, false
		}
		n.Name = name
		return n, true
	})
	return Tree(nodes), ok
}

// Delete removes the node and, with it, its whole subtree.
func Delete(t Tree, id string) (Tree, bool) {
	nodes, ok := removeNode(t, id)
	return Tree(nodes), ok
}

// Move swaps the node with its neighbour in the sibling list that holds it.
// At either end of the list it is a no-op.
func Move(t Tree, id string, dir Direction) (Tree, bool) {
	nodes, ok := moveNode(t, id, dir)
	return Tree(nodes), ok
}

// Filter keeps nodes whose name contains query (case-insensitive) and the folders on the
// path to them. The result is a view; an empty query returns t itself.
func Filter(t Tree, query string) Tree {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return t
	}
	return Tree(filterNodes(t, q))
}

func Find(t Tree, id string) (models.TemplateNode, bool) {
	for _, n := range t {
		if n.ID == id {
			return n, true
		}
		if found, ok := Find(n.Children, id); ok {
			return found, true
		}
	}
	return models.TemplateNode{}, false
}

// Validate checks node types, that templates are leaves and that ids are unique across
// the whole tree. Unique ids also mean no node can appear inside its own subtree.
func Validate(t Tree) error {
	seen := make(map[string]bool)
	var walk func(nodes []models.TemplateNode) error
	walk = func(nodes []models.TemplateNode) error {
		for _, n := range nodes {
			if n.ID == "" {
				return errors.Wrapf(ErrEmptyID, "node %q", n.Name)
			}
			if !n.Type.Valid() {
				return errors.Wrapf(ErrInvalidType, "%q on node %s", n.Type, n.ID)
			}
			if seen[n.ID] {
				return errors.Wrapf(ErrDuplicateID, "%s", n.ID)
			}
			seen[n.ID] = true
			if !n.IsFolder() && len(n.Children) > 0 {
				return errors.Wrapf(ErrLeafChildren, "%s", n.ID)
			}
			if err := walk(n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(t)
}

// IDs returns every id in the tree.
func IDs(t Tree) map[string]bool {
	ids := make(map[string]bool)
	var walk func(nodes []models.TemplateNode)
	walk = func(nodes []models.TemplateNode) {
		for _, n := range nodes {
			ids[n.ID] = true
			walk(n.Children)
		}
	}
	walk(t)
	return ids
}

// Normalize gives folders a non-nil child list and drops children from templates.
func Normalize(t Tree) Tree {
	if t == nil {
		return Tree{}
	}
	out := make(Tree, len(t))
	for i, n := range t {
		switch {
		case n.IsFolder():
			n.Children = Normalize(n.Children)
		default:
			n.Children = nil
		}
		out[i] = n
	}
	return out
}

func updateNode(nodes []models.TemplateNode, id string, fn func(models.TemplateNode) (models.TemplateNode, bool)) ([]models.TemplateNode, bool) {
	for i, n := range nodes {
		var (
			next    models.TemplateNode
			changed bool
		)
		if n.ID == id {
			next, changed = fn(n)
		} else if len(n.Children) > 0 {
			var children []models.TemplateNode
			if children, changed = updateNode(n.Children, id, fn); changed {
				next = n
				next.Children = children
			}
		}
		if changed {
			return replaceAt(nodes, i, next), true
		}
		if n.ID == id {
			return nodes, false
		}
	}
	return nodes, false
}

func removeNode(nodes []models.TemplateNode, id string) ([]models.TemplateNode, bool) {
	for i, n := range nodes {
		if n.ID == id {
			out := make([]models.TemplateNode, 0, len(nodes)-1)
			out = append(out, nodes[:i]...)
			return append(out, nodes[i+1:]...), true
		}
		if children, ok := removeNode(n.Children, id); ok {
			n.Children = children
			return replaceAt(nodes, i, n), true
		}
	}
	return nodes, false
}

func moveNode(nodes []models.TemplateNode, id string, dir Direction) ([]models.TemplateNode, bool) {
	for i, n := range nodes {
		if n.ID == id {
			j := i - 1
			if dir == Down {
				j = i + 1
			}
			if j < 0 || j >= len(nodes) {
				return nodes, false
			}
			out := make([]models.TemplateNode, len(nodes))
			copy(out, nodes)
			out[i], out[j] = out[j], out[i]
			return out, true
		}
	}
	for i, n := range nodes {
		if children, ok := moveNode(n.Children, id, dir); ok {
			n.Children = children
			return replaceAt(nodes, i, n), true
		}
	}
	return nodes, false
}

func filterNodes(nodes []models.TemplateNode, q string) []models.TemplateNode {
	out := make([]models.TemplateNode, 0, len(nodes))
	for _, n := range nodes {
		var children []models.TemplateNode
		if n.IsFolder() {
			children = filterNodes(n.Children, q)
		}
		if strings.Contains(strings.ToLower(n.Name), q) || len(children) > 0 {
			if n.IsFolder() {
				n.Children = children
			}
			out = append(out, n)
		}
	}
	return out
}

func replaceAt(nodes []models.TemplateNode, i int, n models.TemplateNode) []models.TemplateNode {
	out := make([]models.TemplateNode, len(nodes))
	copy(out, nodes)
	out[i] = n
	return out
}

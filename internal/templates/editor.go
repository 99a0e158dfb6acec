package templates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

var (
	ErrNodeNotFound         = errors.New("node not found")
	ErrNotFolder            = errors.New("parent is not a folder")
	ErrConfirmationRequired = errors.New("delete requires confirmation")
	ErrInvalidDirection     = errors.New("direction must be up or down")
)

const placeholderRoots = 2

// TreeStore loads and persists the whole template tree in one call each.
type TreeStore interface {
	FetchTemplates(ctx context.Context) ([]models.TemplateNode, error)
	SaveTemplates(ctx context.Context, tree []models.TemplateNode) error
}

type NodeView struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
	Expanded bool       `json:"expanded,omitempty"`
	Children []NodeView `json:"children,omitempty"`
}

type View struct {
	Tree          []NodeView `json:"tree"`
	Query         string     `json:"query,omitempty"`
	Dirty         bool       `json:"dirty"`
	LoadError     string     `json:"load_error,omitempty"`
	LastSaveError string     `json:"last_save_error,omitempty"`
	SavedAt       *time.Time `json:"saved_at,omitempty"`
}

// Editor holds one admin's working copy of the template tree.
type Editor struct {
	store TreeStore
	clock clock.Clock
	log   *logger.Logger

	mu          sync.Mutex
	tree        Tree
	loaded      bool
	loadErr     error
	dirty       bool
	revision    uint64
	expanded    map[string]bool
	lastSaveErr error
	savedAt     time.Time
}

func NewEditor(store TreeStore, clk clock.Clock, log *logger.Logger) *Editor {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Editor{
		store:    store,
		clock:    clk,
		log:      log,
		tree:     Tree{},
		expanded: make(map[string]bool),
	}
}

// Load fetches the tree once. When the fetch fails or returns a malformed tree the editor
// starts from placeholder folders and remembers the error.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	if e.loaded {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	nodes, err := e.store.FetchTemplates(ctx)
	var tree Tree
	if err == nil {
		tree = Normalize(nodes)
		err = Validate(tree)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	e.loaded = true
	if err != nil {
		e.log.Warn("template tree load failed, using placeholders", "error", err)
		e.loadErr = err
		e.tree = placeholderTree()
		return err
	}
	e.tree = tree
	return nil
}

func placeholderTree() Tree {
	t := make(Tree, 0, placeholderRoots)
	for i := 1; i <= placeholderRoots; i++ {
		t = append(t, NewNode(fmt.Sprintf("Folder %d", i), models.NodeFolder))
	}
	return t
}

// AddRoot appends a new top-level node. An empty name is a cancelled prompt and does nothing.
func (e *Editor) AddRoot(name string, typ models.NodeType) (string, error) {
	if !typ.Valid() {
		return "", errors.Wrapf(ErrInvalidType, "%q", typ)
	}
	name = trimName(name)
	if name == "" {
		return "", nil
	}
	node := NewNode(name, typ)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitLocked(AddRoot(e.tree, node))
	return node.ID, nil
}

// AddChild appends a new node under parentID and expands the parent.
func (e *Editor) AddChild(parentID, name string, typ models.NodeType) (string, error) {
	if !typ.Valid() {
		return "", errors.Wrapf(ErrInvalidType, "%q", typ)
	}
	name = trimName(name)

	e.mu.Lock()
	defer e.mu.Unlock()
	parent, ok := Find(e.tree, parentID)
	if !ok {
		return "", errors.Wrapf(ErrNodeNotFound, "%s", parentID)
	}
	if !parent.IsFolder() {
		return "", errors.Wrapf(ErrNotFolder, "%s", parentID)
	}
	if name == "" {
		return "", nil
	}
	node := NewNode(name, typ)
	next, _ := AddChild(e.tree, parentID, node)
	e.commitLocked(next)
	e.expanded[parentID] = true
	return node.ID, nil
}

func (e *Editor) Rename(id, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := Find(e.tree, id); !ok {
		return errors.Wrapf(ErrNodeNotFound, "%s", id)
	}
	if next, changed := Rename(e.tree, id, name); changed {
		e.commitLocked(next)
	}
	return nil
}

// Delete removes a node and its subtree once the caller has confirmed.
func (e *Editor) Delete(id string, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, ok := Delete(e.tree, id)
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "%s", id)
	}
	e.commitLocked(next)
	for gone := range e.expanded {
		if _, still := Find(next, gone); !still {
			delete(e.expanded, gone)
		}
	}
	return nil
}

func (e *Editor) Move(id string, dir Direction) error {
	if !dir.Valid() {
		return errors.Wrapf(ErrInvalidDirection, "%q", dir)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := Find(e.tree, id); !ok {
		return errors.Wrapf(ErrNodeNotFound, "%s", id)
	}
	if next, moved := Move(e.tree, id, dir); moved {
		e.commitLocked(next)
	}
	return nil
}

// Toggle flips the expanded state of a folder. It is a display concern and does not dirty the tree.
func (e *Editor) Toggle(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, ok := Find(e.tree, id)
	if !ok {
		return false, errors.Wrapf(ErrNodeNotFound, "%s", id)
	}
	if !node.IsFolder() {
		return false, errors.Wrapf(ErrNotFolder, "%s", id)
	}
	if e.expanded[id] {
		delete(e.expanded, id)
		return false, nil
	}
	e.expanded[id] = true
	return true, nil
}

// Save sends the whole tree in one request. The dirty flag is cleared only if the save
// succeeded and nothing changed while it was in flight.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	tree := e.tree
	rev := e.revision
	e.mu.Unlock()

	err := Validate(tree)
	if err == nil {
		err = e.store.SaveTemplates(ctx, tree)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.log.Error("template tree save failed", "revision", rev, "error", err)
		e.lastSaveErr = err
		return err
	}
	e.lastSaveErr = nil
	e.savedAt = e.clock.Now()
	if e.revision == rev {
		e.dirty = false
	}
	e.log.Info("template tree saved", "revision", rev, "nodes", len(IDs(tree)))
	return nil
}

func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Tree returns the current tree. Callers must not modify it.
func (e *Editor) Tree() Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree
}

// View renders the tree filtered by query. While a query is active every folder on the
// path to a match is shown expanded.
func (e *Editor) View(query string) View {
	e.mu.Lock()
	defer e.mu.Unlock()
	filtering := trimName(query) != ""
	v := View{
		Tree:  e.nodeViews(Filter(e.tree, query), filtering),
		Query: query,
		Dirty: e.dirty,
	}
	if e.loadErr != nil {
		v.LoadError = e.loadErr.Error()
	}
	if e.lastSaveErr != nil {
		v.LastSaveError = e.lastSaveErr.Error()
	}
	if !e.savedAt.IsZero() {
		at := e.savedAt
		v.SavedAt = &at
	}
	return v
}

func (e *Editor) nodeViews(nodes []models.TemplateNode, filtering bool) []NodeView {
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		nv := NodeView{ID: n.ID, Name: n.Name, Type: string(n.Type)}
		if n.IsFolder() {
			nv.Expanded = filtering || e.expanded[n.ID]
			nv.Children = e.nodeViews(n.Children, filtering)
		}
		out = append(out, nv)
	}
	return out
}

func (e *Editor) commitLocked(next Tree) {
	e.tree = next
	e.revision++
	e.dirty = true
}

func trimName(s string) string { return strings.TrimSpace(s) }

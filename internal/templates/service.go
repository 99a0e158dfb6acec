package templates

import (
	"context"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"exam-portal/internal/logger"
	"exam-portal/internal/models"
)

var ErrEditorNotOpen = errors.New("template editor is not open")

// Service keeps one editor per admin account.
type Service struct {
	store TreeStore
	clock clock.Clock
	log   *logger.Logger

	mu      sync.Mutex
	editors map[uint]*Editor
}

func NewService(store TreeStore, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		clock:   clk,
		log:     log.With("component", "templates"),
		editors: make(map[uint]*Editor),
	}
}

// Open returns the admin's editor, loading it on first use. A load failure still yields a
// usable editor seeded with placeholders, so the error is only reported in the view.
func (s *Service) Open(ctx context.Context, adminID uint) View {
	s.mu.Lock()
	ed, ok := s.editors[adminID]
	if !ok {
		ed = NewEditor(s.store, s.clock, s.log.With("admin", adminID))
		s.editors[adminID] = ed
	}
	s.mu.Unlock()

	_ = ed.Load(ctx)
	return ed.View("")
}

func (s *Service) Close(adminID uint) {
	s.mu.Lock()
	ed, ok := s.editors[adminID]
	delete(s.editors, adminID)
	s.mu.Unlock()
	if ok && ed.Dirty() {
		s.log.Warn("template editor closed with unsaved changes", "admin", adminID)
	}
}

func (s *Service) editor(adminID uint) (*Editor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ed, ok := s.editors[adminID]
	if !ok {
		return nil, ErrEditorNotOpen
	}
	return ed, nil
}

func (s *Service) View(adminID uint, query string) (View, error) {
	ed, err := s.editor(adminID)
	if err != nil {
		return View{}, err
	}
	return ed.View(query), nil
}

// Add creates a root node when parentID is empty, otherwise a child of parentID.
func (s *Service) Add(adminID uint, parentID, name string, typ models.NodeType) (string, View, error) {
	ed, err := s.editor(adminID)
	if err != nil {
		return "", View{}, err
	}
	var id string
	if parentID == "" {
		id, err = ed.AddRoot(name, typ)
	} else {
		id, err = ed.AddChild(parentID, name, typ)
	}
	if err != nil {
		return "", View{}, err
	}
	return id, ed.View(""), nil
}

func (s *Service) Rename(adminID uint, id, name string) (View, error) {
	return s.apply(adminID, func(ed *Editor) error { return ed.Rename(id, name) })
}

func (s *Service) Delete(adminID uint, id string, confirmed bool) (View, error) {
	return s.apply(adminID, func(ed *Editor) error { return ed.Delete(id, confirmed) })
}

func (s *Service) Move(adminID uint, id string, dir Direction) (View, error) {
	return s.apply(adminID, func(ed *Editor) error { return ed.Move(id, dir) })
}

func (s *Service) Toggle(adminID uint, id string) (View, error) {
	return s.apply(adminID, func(ed *Editor) error {
		_, err := ed.Toggle(id)
		return err
	})
}

// Save returns the view even on failure so the caller can show the save error.
func (s *Service) Save(ctx context.Context, adminID uint) (View, error) {
	ed, err := s.editor(adminID)
	if err != nil {
		return View{}, err
	}
	err = ed.Save(ctx)
	return ed.View(""), err
}

func (s *Service) apply(adminID uint, fn func(*Editor) error) (View, error) {
	ed, err := s.editor(adminID)
	if err != nil {
		return View{}, err
	}
	if err := fn(ed); err != nil {
		return View{}, err
	}
	return ed.View(""), nil
}

package noteservice

import (
	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/markdown"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/query"
	"github.com/starford/gitnotes/internal/vcs"
)

// Notes returns every note's metadata.
func (s *Service) Notes() ([]notes.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return nil, err
	}
	return store.Notes(), nil
}

// Info returns the metadata of a note and the absolute path of its
// content file.
func (s *Service) Info(token string) (notes.Metadata, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, id, err := s.resolveID(token)
	if err != nil {
		return notes.Metadata{}, "", err
	}
	m, _ := store.GetByID(id)
	_, abs := store.StoragePath(id)
	return m, abs, nil
}

// ContentOptions selects a version and a part of a note's content.
type ContentOptions struct {
	History    string
	OnlyCode   bool
	OnlyOutput bool
}

// Content returns a note's content, at History when it is set.
func (s *Service) Content(token string, opts ContentOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := s.content(token, opts.History)
	if err != nil {
		return "", err
	}
	if opts.OnlyCode || opts.OnlyOutput {
		content = markdown.Extract(content, opts.OnlyCode, opts.OnlyOutput)
	}
	return content, nil
}

func (s *Service) content(token, history string) (string, error) {
	store, id, err := s.resolveID(token)
	if err != nil {
		return "", err
	}
	if history == "" {
		return store.ReadContent(id)
	}
	content, ok, err := s.repo.FileAtRevision(history, notes.ContentPath(id))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.NotFound("Note '%s' not found at commit '%s'", token, history)
	}
	return content, nil
}

// Note returns the full representation of a note.
func (s *Service) Note(token string) (*NoteDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, id, err := s.resolveID(token)
	if err != nil {
		return nil, err
	}
	content, err := store.ReadContent(id)
	if err != nil {
		return nil, err
	}
	m, _ := store.GetByID(id)
	return &NoteDetail{
		ID:          m.ID,
		Path:        m.Path,
		Content:     content,
		Checksum:    checksum.String(content),
		Tags:        nonNilSlice(m.Tags),
		Created:     m.Created,
		LastUpdated: m.LastUpdated,
	}, nil
}

// ListItems returns the notes matching q as list items.
func (s *Service) ListItems(q query.FindQuery) ([]NoteListItem, error) {
	found, err := s.Find(q)
	if err != nil {
		return nil, err
	}
	items := make([]NoteListItem, len(found))
	for i, m := range found {
		items[i] = NoteListItem{
			ID:          m.ID,
			Path:        m.Path,
			Tags:        nonNilSlice(m.Tags),
			LastUpdated: m.LastUpdated,
		}
	}
	return items, nil
}

// List returns the children of a directory relative to the working dir.
func (s *Service) List(dir string) ([]query.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return nil, err
	}
	return query.ListDirectory(store.Notes(), notes.ChangeWorkingDir(s.workingDir, dir))
}

// Tree returns the note tree below opts.Prefix, taken relative to the
// working dir.
func (s *Service) Tree(opts query.TreeOptions) (*notes.FileTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return nil, err
	}
	opts.Prefix = notes.ChangeWorkingDir(s.workingDir, opts.Prefix)
	return query.Tree(store.Notes(), opts)
}

// Find filters notes by attributes.
func (s *Service) Find(q query.FindQuery) ([]notes.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	store, err := s.in.Store()
	if err != nil {
		return nil, err
	}
	return query.Find(store.Notes(), q), nil
}

// SearchRequest describes a content search. With History set the commits
// reachable from History[0] are searched, stopping at History[1] if given.
type SearchRequest struct {
	Pattern       string
	CaseSensitive bool
	History       []string
}

// Search runs a regular expression over note content.
func (s *Service) Search(req SearchRequest) ([]query.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	re, err := query.CompilePattern(req.Pattern, req.CaseSensitive)
	if err != nil {
		return nil, err
	}
	switch len(req.History) {
	case 0:
		store, err := s.in.Store()
		if err != nil {
			return nil, err
		}
		return query.Search(store, re)
	case 1:
		return query.SearchHistory(s.repo, re, req.History[0], "")
	case 2:
		return query.SearchHistory(s.repo, re, req.History[0], req.History[1])
	default:
		return nil, apperr.Validation("History takes at most two commits")
	}
}

// Log returns the last count commits, all of them when count is negative.
func (s *Service) Log(count int) ([]vcs.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.Log(s.repo, count)
}

// Resources lists resource files, optionally below prefix.
func (s *Service) Resources(prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return query.Resources(s.repo.Files(), prefix)
}

// ResourcePath returns the absolute path of a resource file.
func (s *Service) ResourcePath(name string) (string, error) {
	rel := notes.CleanPath(name)
	if rel == "" {
		return "", apperr.Validation("Resource name is required")
	}
	fs := s.repo.Files()
	p := notes.ResourcesDir + "/" + rel
	if !fs.Exists(p) {
		return "", apperr.NotFound("Resource not found: %s", name)
	}
	return fs.Abs(p)
}

package notes

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/storage"
)

// Store is an in-memory snapshot of every metadata record in a repository.
// It owns the records for the lifetime of one load; callers drop it after
// any batch that changed files on disk.
type Store struct {
	fs     storage.Provider
	byID   map[NoteID]*Metadata
	byPath map[string]NoteID
}

// LoadStore scans the notes directory and indexes every metadata file.
// Any unreadable or malformed file, or two records claiming one path, fails
// the whole load.
func LoadStore(fs storage.Provider) (*Store, error) {
	files, err := fs.List(NotesDir, MetadataExt)
	if err != nil {
		return nil, fmt.Errorf("notes: load: %w", err)
	}

	s := &Store{
		fs:     fs,
		byID:   make(map[NoteID]*Metadata, len(files)),
		byPath: make(map[string]NoteID, len(files)),
	}
	for _, f := range files {
		data, err := fs.Read(f)
		if err != nil {
			return nil, fmt.Errorf("notes: load: %w", err)
		}
		m, err := DecodeMetadata(data)
		if err != nil {
			return nil, fmt.Errorf("notes: load %s: %w", f, err)
		}
		if other, ok := s.byPath[m.Path]; ok {
			return nil, apperr.Conflict("Notes '%s' and '%s' both claim path '%s'", other, m.ID, m.Path)
		}
		s.byID[m.ID] = &m
		s.byPath[m.Path] = m.ID
	}
	return s, nil
}

// Lookup resolves token as an existing ID first, then as a virtual path.
func (s *Store) Lookup(token string) (NoteID, bool) {
	if isNoteID(token) {
		if _, ok := s.byID[NoteID(token)]; ok {
			return NoteID(token), true
		}
	}
	id, ok := s.byPath[CleanPath(token)]
	return id, ok
}

// Resolve maps a user token to a NoteID. A token that is a valid, existing
// ID wins; otherwise the token goes through resolver and the path index.
func (s *Store) Resolve(token string, resolver PathResolver) (NoteID, error) {
	if isNoteID(token) {
		if _, ok := s.byID[NoteID(token)]; ok {
			return NoteID(token), nil
		}
	}
	p := token
	if resolver != nil {
		resolved, err := resolver.Resolve(token)
		if err != nil {
			return "", err
		}
		p = resolved
	}
	if id, ok := s.byPath[CleanPath(p)]; ok {
		return id, nil
	}
	return "", apperr.NotFound("Note '%s' not found", token)
}

// ContainsPath reports whether a note claims the virtual path p.
func (s *Store) ContainsPath(p string) bool {
	_, ok := s.byPath[CleanPath(p)]
	return ok
}

// PathConflict reports a note, other than ignore, that would make p
// ambiguous in the tree: one stored at an ancestor of p or below p.
func (s *Store) PathConflict(p string, ignore NoteID) (string, bool) {
	p = CleanPath(p)
	for q, id := range s.byPath {
		if id == ignore {
			continue
		}
		if strings.HasPrefix(p, q+"/") || strings.HasPrefix(q, p+"/") {
			return q, true
		}
	}
	return "", false
}

// Get returns a copy of the record addressed by token (ID or path).
func (s *Store) Get(token string) (Metadata, bool) {
	id, ok := s.Lookup(token)
	if !ok {
		return Metadata{}, false
	}
	return s.GetByID(id)
}

// GetByID returns a copy of the record for id.
func (s *Store) GetByID(id NoteID) (Metadata, bool) {
	m, ok := s.byID[id]
	if !ok {
		return Metadata{}, false
	}
	return m.Clone(), true
}

// GetByIDMut returns the owned record for id. Changes become visible to
// path lookups and disk only after Save.
func (s *Store) GetByIDMut(id NoteID) (*Metadata, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Has reports whether id exists.
func (s *Store) Has(id NoteID) bool {
	_, ok := s.byID[id]
	return ok
}

// Len returns the number of notes.
func (s *Store) Len() int {
	return len(s.byID)
}

// Notes returns copies of every record ordered by path.
func (s *Store) Notes() []Metadata {
	out := make([]Metadata, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// GenerateID returns an ID that no note in the store uses.
func (s *Store) GenerateID() (NoteID, error) {
	return GenerateNoteID(s.Has)
}

// Insert adds a new record and persists it.
func (s *Store) Insert(m Metadata) error {
	if _, ok := s.byID[m.ID]; ok {
		return apperr.Internal("note id %s already in use", m.ID)
	}
	if s.ContainsPath(m.Path) {
		return apperr.AlreadyExists("Note '%s' already exists", m.Path)
	}
	rec := m.Clone()
	s.byID[rec.ID] = &rec
	return s.Save(rec.ID)
}

// Save writes the record for id to disk and refreshes the path index.
func (s *Store) Save(id NoteID) error {
	m, ok := s.byID[id]
	if !ok {
		return apperr.NotFound("Note '%s' not found", id)
	}
	m.Path = CleanPath(m.Path)
	for p, owner := range s.byPath {
		if owner == id && p != m.Path {
			delete(s.byPath, p)
		}
	}
	s.byPath[m.Path] = id

	data, err := EncodeMetadata(*m)
	if err != nil {
		return err
	}
	if err := s.fs.Write(MetadataPath(id), data); err != nil {
		return fmt.Errorf("notes: save %s: %w", id, err)
	}
	return nil
}

// Forget drops id from the snapshot without touching the disk.
func (s *Store) Forget(id NoteID) {
	m, ok := s.byID[id]
	if !ok {
		return
	}
	if s.byPath[m.Path] == id {
		delete(s.byPath, m.Path)
	}
	delete(s.byID, id)
}

// ReadContent returns the full text of a note.
func (s *Store) ReadContent(id NoteID) (string, error) {
	if !s.Has(id) {
		return "", apperr.NotFound("Note '%s' not found", id)
	}
	data, err := s.fs.Read(ContentPath(id))
	if err != nil {
		return "", fmt.Errorf("notes: read content: %w", err)
	}
	return string(data), nil
}

// EachContentLine streams a note's content to fn line by line, numbered
// from 1, until fn returns false. Every call reopens the file.
func (s *Store) EachContentLine(id NoteID, fn func(n int, line string) bool) error {
	if !s.Has(id) {
		return apperr.NotFound("Note '%s' not found", id)
	}
	abs, err := s.fs.Abs(ContentPath(id))
	if err != nil {
		return err
	}
	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("notes: open content: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if !fn(n, sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

// StoragePath returns the repository-relative and absolute content path.
func (s *Store) StoragePath(id NoteID) (string, string) {
	return s.paths(ContentPath(id))
}

// MetadataPath returns the repository-relative and absolute metadata path.
func (s *Store) MetadataPath(id NoteID) (string, string) {
	return s.paths(MetadataPath(id))
}

func (s *Store) paths(rel string) (string, string) {
	return rel, filepath.Join(s.fs.Root(), filepath.FromSlash(rel))
}

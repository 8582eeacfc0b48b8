package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/editor"
	"github.com/starford/gitnotes/internal/notes"
	"github.com/starford/gitnotes/internal/snippet"
)

func (i *Interpreter) updateLinks() error {
	s, err := i.Store()
	if err != nil {
		return err
	}
	return notes.RebuildLinks(i.fs, s.Notes())
}

func (i *Interpreter) resolve(token string) (*notes.Store, notes.NoteID, error) {
	s, err := i.Store()
	if err != nil {
		return nil, "", err
	}
	id, err := s.Resolve(token, nil)
	if err != nil {
		return nil, "", err
	}
	return s, id, nil
}

// checkFree fails when p is taken or would turn a note into a directory.
func checkFree(s *notes.Store, p string, ignore notes.NoteID) error {
	if s.ContainsPath(p) {
		return apperr.AlreadyExists("Note '%s' already exists", p)
	}
	if other, ok := s.PathConflict(p, ignore); ok {
		return apperr.Conflict("Path '%s' conflicts with note '%s'", p, other)
	}
	return nil
}

func (i *Interpreter) addNote(ctx context.Context, c AddNote) error {
	p := notes.CleanPath(c.Path)
	s, err := i.Store()
	if err != nil {
		return err
	}
	if err := checkFree(s, p, ""); err != nil {
		return err
	}
	id, err := s.GenerateID()
	if err != nil {
		return err
	}

	rel, abs := s.StoragePath(id)
	i.touch(rel)
	if !i.fs.Exists(rel) {
		if err := i.fs.Write(rel, nil); err != nil {
			return fmt.Errorf("Failed to add note: %w", err)
		}
	}
	out, err := i.editor.Edit(ctx, abs, p)
	if err != nil {
		return fmt.Errorf("Failed to add note: %w", err)
	}
	if err := i.insertNote(s, id, p, c.Tags); err != nil {
		return err
	}
	return i.stageEditorResources(out)
}

func (i *Interpreter) addNoteWithContent(c AddNoteWithContent) error {
	p := notes.CleanPath(c.Path)
	s, err := i.Store()
	if err != nil {
		return err
	}
	if err := checkFree(s, p, ""); err != nil {
		return err
	}
	id, err := s.GenerateID()
	if err != nil {
		return err
	}

	rel, _ := s.StoragePath(id)
	i.touch(rel)
	if err := i.fs.Write(rel, []byte(c.Content)); err != nil {
		return fmt.Errorf("Failed to add note: %w", err)
	}
	return i.insertNote(s, id, p, c.Tags)
}

// insertNote records metadata for a content file that is already written.
func (i *Interpreter) insertNote(s *notes.Store, id notes.NoteID, p string, tagList []string) error {
	contentRel, _ := s.StoragePath(id)
	metaRel, _ := s.MetadataPath(id)

	if len(tagList) == 0 {
		content, err := i.fs.Read(contentRel)
		if err != nil {
			return fmt.Errorf("Failed to add note: %w", err)
		}
		tagList = i.tagger.Suggest(string(content))
	}

	m := notes.NewMetadata(id, p, tagList)
	m.Created = i.now()
	m.LastUpdated = m.Created

	i.touch(metaRel)
	if err := s.Insert(m); err != nil {
		return err
	}
	if err := i.stage(contentRel, metaRel); err != nil {
		return err
	}
	if err := notes.ProjectLink(i.fs, m); err != nil {
		return err
	}

	suffix := ""
	if len(m.Tags) > 0 {
		suffix = " using tags: " + strings.Join(m.Tags, ", ")
	}
	i.messages.add("Added note '%s' (id: %s)%s.", p, id, suffix)
	return nil
}

func (i *Interpreter) editNote(ctx context.Context, c EditNoteContent) error {
	s, id, err := i.resolve(c.Path)
	if err != nil {
		return err
	}
	m, _ := s.GetByID(id)
	rel, abs := s.StoragePath(id)
	i.touch(rel)

	if c.History != "" {
		content, ok, err := i.repo.FileAtRevision(c.History, rel)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("Note '%s' not found at commit '%s'", c.Path, c.History)
		}
		if err := i.fs.Write(rel, []byte(content)); err != nil {
			return fmt.Errorf("Failed to edit note: %w", err)
		}
	}

	out, err := i.editor.Edit(ctx, abs, m.Path)
	if err != nil {
		return fmt.Errorf("Failed to edit note: %w", err)
	}
	if err := i.finishEdit(s, id, c.ClearTags, c.AddTags); err != nil {
		return err
	}
	return i.stageEditorResources(out)
}

func (i *Interpreter) setNoteContent(c EditNoteSetContent) error {
	s, id, err := i.resolve(c.Path)
	if err != nil {
		return err
	}
	rel, _ := s.StoragePath(id)
	i.touch(rel)
	if err := i.fs.Write(rel, []byte(c.Content)); err != nil {
		return fmt.Errorf("Failed to edit note: %w", err)
	}
	return i.finishEdit(s, id, c.ClearTags, c.AddTags)
}

// finishEdit stages the content, applies tag changes and, when the note now
// differs from HEAD, bumps last_updated and records the edit.
func (i *Interpreter) finishEdit(s *notes.Store, id notes.NoteID, clearTags bool, addTags []string) error {
	contentRel, _ := s.StoragePath(id)
	metaRel, _ := s.MetadataPath(id)
	if err := i.stage(contentRel); err != nil {
		return err
	}

	m, ok := s.GetByIDMut(id)
	if !ok {
		return apperr.NotFound("Note '%s' not found", id)
	}
	if clearTags || len(addTags) > 0 {
		if clearTags {
			m.Tags = []string{}
		}
		m.Tags = append(m.Tags, addTags...)
		if err := s.Save(id); err != nil {
			return fmt.Errorf("Failed to update metadata: %w", err)
		}
		if err := i.stage(metaRel); err != nil {
			return err
		}
	}

	changed, err := i.repo.PathsChanged(contentRel, metaRel)
	if err != nil || !changed {
		return err
	}
	if err := i.bumpLastUpdated(s, id); err != nil {
		return err
	}
	i.messages.add("Updated note '%s'.", m.Path)
	return nil
}

func (i *Interpreter) bumpLastUpdated(s *notes.Store, id notes.NoteID) error {
	m, ok := s.GetByIDMut(id)
	if !ok {
		return apperr.NotFound("Note '%s' not found", id)
	}
	m.LastUpdated = i.now()
	if err := s.Save(id); err != nil {
		return fmt.Errorf("Failed to update metadata: %w", err)
	}
	metaRel, _ := s.MetadataPath(id)
	return i.stage(metaRel)
}

func (i *Interpreter) moveNote(c MoveNote) error {
	s, id, err := i.resolve(c.Source)
	if err != nil {
		return err
	}
	dest := notes.CleanPath(c.Destination)
	if dest == "" {
		return apperr.Validation("Invalid destination '%s'", c.Destination)
	}
	m, ok := s.GetByIDMut(id)
	if !ok {
		return apperr.NotFound("Note '%s' not found", c.Source)
	}
	source := m.Path

	if other, ok := s.Lookup(dest); ok && other != id {
		if !c.Force {
			return apperr.Conflict("Existing note at destination '%s', use -f to delete that note before moving", dest)
		}
		if err := i.removeNote(string(other)); err != nil {
			return err
		}
	}
	if other, ok := s.PathConflict(dest, id); ok {
		return apperr.Conflict("Path '%s' conflicts with note '%s'", dest, other)
	}

	notes.RemoveLink(i.fs, *m)
	m.Path = dest
	if err := s.Save(id); err != nil {
		return fmt.Errorf("Failed to update metadata: %w", err)
	}
	metaRel, _ := s.MetadataPath(id)
	if err := i.stage(metaRel); err != nil {
		return err
	}
	if err := notes.ProjectLink(i.fs, *m); err != nil {
		return err
	}

	changed, err := i.repo.PathsChanged(metaRel)
	if err != nil || !changed {
		return err
	}
	if err := i.bumpLastUpdated(s, id); err != nil {
		return err
	}
	i.messages.add("Moved note from '%s' to '%s'.", source, dest)
	return nil
}

func (i *Interpreter) removeNote(token string) error {
	s, id, err := i.resolve(token)
	if err != nil {
		return err
	}
	m, _ := s.GetByID(id)
	contentRel, _ := s.StoragePath(id)
	metaRel, _ := s.MetadataPath(id)

	i.touch(contentRel, metaRel)
	for _, p := range []string{contentRel, metaRel} {
		if err := i.fs.Delete(p); err != nil {
			return fmt.Errorf("Failed to remove note: %w", err)
		}
	}
	if err := i.stage(contentRel, metaRel); err != nil {
		return err
	}
	notes.RemoveLink(i.fs, m)
	s.Forget(id)

	i.messages.add("Deleted note '%s'.", m.Path)
	return nil
}

func (i *Interpreter) undoCommit(c UndoCommit) error {
	reverted, changed, err := i.repo.Revert(c.Commit)
	if err != nil {
		return err
	}
	i.touch(changed...)
	i.store = nil
	if err := i.updateLinks(); err != nil {
		return err
	}
	i.messages.add("Undo commit '%s'.", reverted.ShortID)
	return nil
}

func (i *Interpreter) runSnippet(ctx context.Context, c RunSnippet) error {
	s, id, err := i.resolve(c.Path)
	if err != nil {
		return err
	}
	content, err := s.ReadContent(id)
	if err != nil {
		return err
	}

	outputs := map[int]string{}
	for n, section := range i.formatter.Sections(content) {
		out, err := i.runner.Run(ctx, section.Language, section.Code)
		if err != nil {
			var execErr *snippet.ExecutionError
			var compileErr *snippet.CompileError
			switch {
			case errors.As(err, &execErr):
				fmt.Fprint(i.out, execErr.Output)
			case errors.As(err, &compileErr):
				fmt.Fprint(i.out, compileErr.Output)
			}
			if c.SaveOutput && len(outputs) > 0 {
				if serr := i.saveRunOutput(s, id, content, outputs); serr != nil {
					return serr
				}
			}
			return fmt.Errorf("Failed to run snippet: %w", err)
		}
		fmt.Fprint(i.out, out)
		outputs[n] = out
	}

	if !c.SaveOutput {
		return nil
	}
	return i.saveRunOutput(s, id, content, outputs)
}

func (i *Interpreter) saveRunOutput(s *notes.Store, id notes.NoteID, content string, outputs map[int]string) error {
	rel, _ := s.StoragePath(id)
	i.touch(rel)
	if err := i.fs.Write(rel, []byte(i.formatter.ReplaceOutputs(content, outputs))); err != nil {
		return err
	}
	if err := i.stage(rel); err != nil {
		return err
	}

	changed, err := i.repo.PathsChanged(rel)
	if err != nil || !changed {
		return err
	}
	if err := i.bumpLastUpdated(s, id); err != nil {
		return err
	}
	m, _ := s.GetByID(id)
	i.messages.add("Saved run output for note '%s'.", m.Path)
	return nil
}

func (i *Interpreter) addResource(c AddResource) error {
	info, err := os.Stat(c.Path)
	if err != nil || info.IsDir() {
		return apperr.NotFound("Resource not found: %s", c.Path)
	}
	dest := notes.CleanPath(c.Destination)
	if dest == "" {
		dest = filepath.Base(c.Path)
	}
	rel := path.Join(notes.ResourcesDir, dest)

	i.touch(rel)
	if err := i.fs.CopyFrom(c.Path, rel); err != nil {
		return err
	}
	if err := i.stage(rel); err != nil {
		return err
	}
	i.messages.add("Added resource '%s' (from %s).", dest, c.Path)
	return nil
}

func (i *Interpreter) stageEditorResources(out editor.Output) error {
	for _, r := range out.AddedResources {
		rel := path.Join(notes.ResourcesDir, notes.CleanPath(r))
		if err := i.stage(rel); err != nil {
			return err
		}
		i.messages.add("Added resource '%s'.", r)
	}
	return nil
}

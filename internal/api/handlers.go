package api

import (
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/checksum"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/query"
	"github.com/starford/gitnotes/internal/vcs"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardPath extracts the path after the route prefix. Encoded slashes
// from generated clients (work%2Ftodo) are accepted.
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func (h *Handler) writeNote(w http.ResponseWriter, r *http.Request, status int, token string) {
	note, err := h.svc.Note(token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(note.Checksum))
	writeJSON(w, status, note)
}

// ListNotes handles GET /api/notes.
//
//	@Summary	List notes, optionally filtered
//	@Tags		notes
//	@Param		tag		query	[]string	false	"Required tags"
//	@Param		path	query	string		false	"Path regex"
//	@Param		id		query	string		false	"ID regex"
//	@Success	200		{object}	NoteListResponse
//	@Router		/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fq := query.FindQuery{Tags: q["tag"]}
	for name, target := range map[string]**regexp.Regexp{"path": &fq.Path, "id": &fq.ID} {
		if v := q.Get(name); v != "" {
			re, err := query.CompilePattern(v, true)
			if err != nil {
				writeError(w, r, err)
				return
			}
			*target = re
		}
	}

	items, err := h.svc.ListItems(fq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []NoteListItem{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/*. With ?history=<rev> the content at
// that revision is returned instead.
//
//	@Summary	Get a single note by path or id
//	@Tags		notes
//	@Success	200	{object}	NoteDetail
//	@Failure	404	{object}	errResponse
//	@Router		/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	history := r.URL.Query().Get("history")
	if history == "" {
		h.writeNote(w, r, http.StatusOK, p)
		return
	}

	note, err := h.svc.Note(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	content, err := h.svc.Content(p, noteservice.ContentOptions{History: history})
	if err != nil {
		writeError(w, r, err)
		return
	}
	note.Content = content
	note.Checksum = checksum.String(content)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary	Create a new note
//	@Tags		notes
//	@Param		body	body		CreateNoteRequest	true	"Note to create"
//	@Success	201		{object}	NoteDetail
//	@Failure	409		{object}	errResponse
//	@Router		/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	m, err := h.svc.Add(r.Context(), noteservice.AddRequest{Path: req.Path, Tags: req.Tags, Content: &req.Content})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeNote(w, r, http.StatusCreated, string(m.ID))
}

// UpdateNote handles PUT /api/notes/*. An If-Match header must carry the
// checksum of the content being replaced.
//
//	@Summary	Update a note with optimistic concurrency
//	@Tags		notes
//	@Param		If-Match	header	string				false	"Checksum of the current content"
//	@Param		body		body	UpdateNoteRequest	true	"Updated content"
//	@Success	200			{object}	NoteDetail
//	@Failure	409			{object}	errResponse
//	@Router		/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	m, err := h.svc.Edit(r.Context(), noteservice.EditRequest{
		Path:      p,
		Content:   req.Content,
		ClearTags: req.ClearTags,
		AddTags:   req.AddTags,
		IfMatch:   r.Header.Get("If-Match"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeNote(w, r, http.StatusOK, string(m.ID))
}

// DeleteNote handles DELETE /api/notes/*. Directories and glob patterns
// need ?recursive=true when they match directories.
//
//	@Summary	Delete notes
//	@Tags		notes
//	@Success	204	"Deleted"
//	@Router		/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Remove(r.Context(), p, boolParam(r, "recursive")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Move handles POST /api/move.
//
//	@Summary	Move notes, directories or glob matches
//	@Tags		notes
//	@Param		body	body	MoveRequest	true	"Move request"
//	@Success	204		"Moved"
//	@Router		/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.Move(r.Context(), req.Source, req.Destination, req.Force); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/undo.
//
//	@Summary	Revert a commit
//	@Tags		history
//	@Param		body	body	UndoRequest	true	"Commit to revert"
//	@Success	204		"Reverted"
//	@Router		/undo [post]
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.Undo(r.Context(), req.Commit); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run handles POST /api/run/*. With ?save=true the output is written back
// into the note, which is returned.
//
//	@Summary	Run the code blocks of a note
//	@Tags		notes
//	@Success	200	{object}	NoteDetail
//	@Failure	422	{object}	errResponse
//	@Router		/run/{path} [post]
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.Run(r.Context(), p, boolParam(r, "save")); err != nil {
		writeError(w, r, apperr.Wrap(apperr.ErrExecution, err))
		return
	}
	h.writeNote(w, r, http.StatusOK, p)
}

// Tree handles GET /api/tree.
//
//	@Summary	Get the note tree
//	@Tags		notes
//	@Param		prefix	query	string	false	"Subtree to return"
//	@Param		date	query	bool	false	"Group by creation date"
//	@Param		tags	query	bool	false	"Group by first tag"
//	@Success	200		{array}	TreeNode
//	@Router		/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.svc.Tree(query.TreeOptions{
		Prefix: r.URL.Query().Get("prefix"),
		ByDate: boolParam(r, "date"),
		ByTags: boolParam(r, "tags"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodes := treeNodes(tree)
	if nodes == nil {
		nodes = []TreeNode{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

// Search handles GET /api/search.
//
//	@Summary	Regular expression search over note content
//	@Tags		search
//	@Param		q				query	string		true	"Pattern"
//	@Param		case_sensitive	query	bool		false	"Match case"
//	@Param		history			query	[]string	false	"Search history from the first revision, until the second"
//	@Success	200				{object}	SearchResponse
//	@Router		/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("q")
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	results, err := h.svc.Search(noteservice.SearchRequest{
		Pattern:       pattern,
		CaseSensitive: boolParam(r, "case_sensitive"),
		History:       q["history"],
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []query.Match{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Log handles GET /api/log.
//
//	@Summary	Recent commits
//	@Tags		history
//	@Param		count	query	int	false	"Number of commits, all when omitted"
//	@Success	200		{object}	LogResponse
//	@Router		/log [get]
func (h *Handler) Log(w http.ResponseWriter, r *http.Request) {
	count := -1
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("count must be a non-negative integer"))
			return
		}
		count = n
	}
	commits, err := h.svc.Log(count)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if commits == nil {
		commits = []vcs.Commit{}
	}
	writeJSON(w, http.StatusOK, LogResponse{Commits: commits})
}

package api

import (
	"bytes"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/notes"
)

const maxUploadBytes = 50 << 20

// ResourceHandler serves and accepts files under the resources directory.
type ResourceHandler struct {
	svc *noteservice.Service
}

// NewResourceHandler creates a resource handler.
func NewResourceHandler(svc *noteservice.Service) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

// resourceName validates a client-supplied resource name. Sub-directories
// are allowed; escaping the resources directory is not.
func resourceName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") {
		return "", false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", false
		}
	}
	cleaned := notes.CleanPath(name)
	return cleaned, cleaned != ""
}

// List handles GET /api/resources.
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Resources(r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, ResourceListResponse{Resources: list})
}

// ServeFile handles GET /api/resources/*.
func (h *ResourceHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name, ok := resourceName(wildcardPath(r))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid resource name"))
		return
	}
	abs, err := h.svc.ResourcePath(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/resources (multipart/form-data, field "file").
// The optional "name" field sets the destination; the uploaded file name
// is used otherwise.
func (h *ResourceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	raw := r.FormValue("name")
	if raw == "" {
		raw = path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	}
	name, ok := resourceName(raw)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid resource name"))
		return
	}

	var buf bytes.Buffer
	written, err := io.Copy(&buf, file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	if err := h.svc.AddResourceData(r.Context(), name, buf.Bytes()); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ResourceUploadResponse{
		Name: name,
		Size: written,
		URL:  "/api/resources/" + name,
	})
}

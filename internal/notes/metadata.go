package notes

import (
	"bytes"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Repository layout.
const (
	NotesDir     = "notes"
	ResourcesDir = "resources"
	ContentExt   = ".md"
	MetadataExt  = ".metadata"
)

// Metadata is the per-note record persisted as <id>.metadata.
type Metadata struct {
	ID          NoteID    `toml:"id" json:"id"`
	Created     time.Time `toml:"created" json:"created"`
	LastUpdated time.Time `toml:"last_updated" json:"last_updated"`
	Path        string    `toml:"path" json:"path"`
	Tags        []string  `toml:"tags" json:"tags"`
}

// NewMetadata creates a record whose created and last_updated are both now.
func NewMetadata(id NoteID, p string, tags []string) Metadata {
	now := time.Now()
	if tags == nil {
		tags = []string{}
	}
	return Metadata{
		ID:          id,
		Created:     now,
		LastUpdated: now,
		Path:        CleanPath(p),
		Tags:        tags,
	}
}

// InfoText renders the record as "<path> (id: <id>)".
func (m Metadata) InfoText() string {
	return fmt.Sprintf("%s (id: %s)", m.Path, m.ID)
}

// Name returns the last segment of the virtual path.
func (m Metadata) Name() string {
	return path.Base(m.Path)
}

// Clone returns a copy that shares no slices with m.
func (m Metadata) Clone() Metadata {
	m.Tags = slices.Clone(m.Tags)
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return m
}

// EncodeMetadata renders m as TOML. Timestamps keep nanoseconds and offset.
func EncodeMetadata(m Metadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, fmt.Errorf("notes: encode metadata %s: %w", m.ID, err)
	}
	return buf.Bytes(), nil
}

// DecodeMetadata parses a TOML metadata record.
func DecodeMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if _, err := toml.Decode(string(data), &m); err != nil {
		return Metadata{}, fmt.Errorf("notes: decode metadata: %w", err)
	}
	if m.ID == "" {
		return Metadata{}, fmt.Errorf("notes: decode metadata: missing id")
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.Path = CleanPath(m.Path)
	return m, nil
}

// CleanPath normalises a virtual path: forward slashes, no leading or
// trailing separator, no dot segments.
func CleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// ContentPath is the repository-relative content file of id.
func ContentPath(id NoteID) string {
	return NotesDir + "/" + string(id) + ContentExt
}

// MetadataPath is the repository-relative metadata file of id.
func MetadataPath(id NoteID) string {
	return NotesDir + "/" + string(id) + MetadataExt
}

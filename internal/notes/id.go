// Package notes implements the content-addressed note store: identifiers,
// metadata records, path resolution and the virtual file tree built over them.
package notes

import (
	"math/rand/v2"

	"github.com/starford/gitnotes/internal/apperr"
)

// IDSize is the number of decimal digits in a NoteID.
const IDSize = 5

// maxIDAttempts bounds GenerateNoteID before it gives up.
const maxIDAttempts = 64

// NoteID is the permanent storage key of a note.
type NoteID string

// NewNoteID samples IDSize uniformly random digits.
func NewNoteID() NoteID {
	var buf [IDSize]byte
	for i := range buf {
		buf[i] = byte('0' + rand.IntN(10))
	}
	return NoteID(buf[:])
}

// GenerateNoteID returns a fresh NoteID for which exists reports false.
func GenerateNoteID(exists func(NoteID) bool) (NoteID, error) {
	for range maxIDAttempts {
		id := NewNoteID()
		if !exists(id) {
			return id, nil
		}
	}
	return "", apperr.Internal("no free note id after %d attempts", maxIDAttempts)
}

// ParseNoteID validates s as a NoteID.
func ParseNoteID(s string) (NoteID, error) {
	if !isNoteID(s) {
		return "", apperr.Validation("invalid note id %q: string of length %d that only contains digits", s, IDSize)
	}
	return NoteID(s), nil
}

func isNoteID(s string) bool {
	if len(s) != IDSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (id NoteID) String() string {
	return string(id)
}

// MarshalText implements encoding.TextMarshaler.
func (id NoteID) MarshalText() ([]byte, error) {
	return []byte(id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler with validation.
func (id *NoteID) UnmarshalText(text []byte) error {
	parsed, err := ParseNoteID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

package track

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Unknown is stored when the uploader's tags carry no title or artist.
const Unknown = "Unknown"

var ErrInvalidTrack = errors.New("invalid track")

// Track is one playable item of a group playlist. ID is the opaque reference
// the messaging platform uses to resend the audio (e.g. a file id).
type Track struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// New validates id and sanitizes the free-text fields.
func New(id, title, artist string) (Track, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Track{}, fmt.Errorf("%w: id must not be empty", ErrInvalidTrack)
	}
	return Track{
		ID:     id,
		Title:  cleanText(title),
		Artist: cleanText(artist),
	}, nil
}

// Normalize runs t through New, so tracks built as literals get the same
// id trimming and text cleanup as decoded ones.
func (t Track) Normalize() (Track, error) {
	return New(t.ID, t.Title, t.Artist)
}

// Validate reports whether t carries a usable id.
func (t Track) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id must not be empty", ErrInvalidTrack)
	}
	return nil
}

// Caption is the "<title> - <artist>" line shown under the audio message.
func (t Track) Caption() string {
	return t.Title + " - " + t.Artist
}

func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

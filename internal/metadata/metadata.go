// Package metadata reads title and artist tags from uploaded audio.
package metadata

import (
	"fmt"
	"io"

	"github.com/dhowden/tag"

	"squonk-radio/internal/track"
)

// Extract builds a track for fileID from the tags in r. ID3, MP4, FLAC and
// Ogg tags are understood. When the tags cannot be read the returned track
// still carries fileID with Unknown title and artist, and the read error is
// returned next to it.
func Extract(r io.ReadSeeker, fileID string) (track.Track, error) {
	fallback, err := track.New(fileID, "", "")
	if err != nil {
		return track.Track{}, err
	}

	m, err := tag.ReadFrom(r)
	if err != nil {
		return fallback, fmt.Errorf("read tags: %w", err)
	}

	t, err := track.New(fileID, m.Title(), m.Artist())
	if err != nil {
		return fallback, err
	}
	return t, nil
}

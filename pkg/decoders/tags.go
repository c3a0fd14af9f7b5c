package decoders

import (
	"fmt"
	"io"

	"github.com/dhowden/tag"

	"github.com/drgolem/dmm/pkg/types"
)

// Tags is the display metadata of a track.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Track  int
	Year   int
}

// ReadTags reads ID3, MP4, FLAC or Ogg tags from r and rewinds it.
func ReadTags(r io.ReadSeeker) (Tags, error) {
	defer r.Seek(0, io.SeekStart)

	m, err := tag.ReadFrom(r)
	if err != nil {
		return Tags{}, fmt.Errorf("failed to read tags: %w", err)
	}

	track, _ := m.Track()
	return Tags{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Track:  track,
		Year:   m.Year(),
	}, nil
}

// TagsFromMetadata fills empty fields of t from a container metadata revision.
func TagsFromMetadata(t Tags, rev types.MetadataRevision) Tags {
	if t.Title == "" {
		t.Title, _ = rev.Value("TITLE")
	}
	if t.Artist == "" {
		t.Artist, _ = rev.Value("ARTIST")
	}
	if t.Album == "" {
		t.Album, _ = rev.Value("ALBUM")
	}
	return t
}

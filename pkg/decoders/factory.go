package decoders

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/drgolem/dmm/pkg/decoders/aiff"
	"github.com/drgolem/dmm/pkg/decoders/flac"
	"github.com/drgolem/dmm/pkg/decoders/mp3"
	"github.com/drgolem/dmm/pkg/decoders/vorbis"
	"github.com/drgolem/dmm/pkg/decoders/wav"
	"github.com/drgolem/dmm/pkg/types"
)

// ErrUnsupportedFormat is returned when no container reader accepts the source.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Container demultiplexes and decodes one encoded source.
type Container interface {
	Tracks() []types.Track
	// NextPacket decodes the next packet. The buffer is valid until the
	// following call.
	NextPacket() (types.Packet, *types.AudioBuffer, error)
	Metadata() *types.MetadataLog
	Close() error
}

// OpenFunc opens a container over a source positioned at its start.
type OpenFunc func(r io.ReadSeeker) (Container, error)

// Format describes one registered container format.
type Format struct {
	Name       string
	Extensions []string
	// Sniff reports whether the leading bytes look like this format.
	Sniff func(header []byte) bool
	Open  OpenFunc
}

// Registry maps format hints and magic bytes to container readers.
// It is safe for concurrent reads once populated.
type Registry struct {
	formats []Format
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a format. Later registrations take precedence when sniffing.
func (r *Registry) Register(f Format) {
	r.formats = append([]Format{f}, r.formats...)
}

// Formats returns the registered format names.
func (r *Registry) Formats() []string {
	names := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		names = append(names, f.Name)
	}
	return names
}

// lookup returns the format registered for an extension-like hint.
func (r *Registry) lookup(hint string) (Format, bool) {
	hint = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(hint), "."))
	if hint == "" {
		return Format{}, false
	}
	for _, f := range r.formats {
		if f.Name == hint {
			return f, true
		}
		for _, ext := range f.Extensions {
			if ext == hint {
				return f, true
			}
		}
	}
	return Format{}, false
}

const sniffLen = 12

// Probe selects and opens a container for src. The hint is tried first;
// when it is empty, unknown, or rejects the data, the leading bytes decide.
func (r *Registry) Probe(src io.ReadSeeker, hint string) (Container, string, error) {
	var hintErr error
	if f, ok := r.lookup(hint); ok {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, "", fmt.Errorf("failed to rewind source: %w", err)
		}
		c, err := f.Open(src)
		if err == nil {
			return c, f.Name, nil
		}
		hintErr = fmt.Errorf("%s: %w", f.Name, err)
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("failed to rewind source: %w", err)
	}
	header := make([]byte, sniffLen)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return nil, "", fmt.Errorf("%w: empty source", ErrUnsupportedFormat)
		}
		return nil, "", fmt.Errorf("failed to read source header: %w", err)
	}
	header = header[:n]

	for _, f := range r.formats {
		if f.Sniff == nil || !f.Sniff(header) {
			continue
		}
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return nil, "", fmt.Errorf("failed to rewind source: %w", err)
		}
		c, err := f.Open(src)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %s: %w", ErrUnsupportedFormat, f.Name, err)
		}
		return c, f.Name, nil
	}

	if hintErr != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, hintErr)
	}
	return nil, "", fmt.Errorf("%w (hint %q)", ErrUnsupportedFormat, hint)
}

// DefaultRegistry holds every built-in container reader.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	// MP3 has the weakest signature and is registered first so it is sniffed last
	r.Register(Format{
		Name:       "mp3",
		Extensions: []string{"mp3", "mpga"},
		Sniff:      sniffMP3,
		Open:       func(src io.ReadSeeker) (Container, error) { return mp3.Open(src) },
	})
	r.Register(Format{
		Name:       "vorbis",
		Extensions: []string{"ogg", "oga"},
		Sniff:      func(h []byte) bool { return bytes.HasPrefix(h, []byte("OggS")) },
		Open:       func(src io.ReadSeeker) (Container, error) { return vorbis.Open(src) },
	})
	r.Register(Format{
		Name:       "flac",
		Extensions: []string{"flac", "fla"},
		Sniff:      func(h []byte) bool { return bytes.HasPrefix(h, []byte("fLaC")) },
		Open:       func(src io.ReadSeeker) (Container, error) { return flac.Open(src) },
	})
	r.Register(Format{
		Name:       "aiff",
		Extensions: []string{"aiff", "aif", "aifc"},
		Sniff: func(h []byte) bool {
			return len(h) >= 12 && string(h[0:4]) == "FORM" &&
				(string(h[8:12]) == "AIFF" || string(h[8:12]) == "AIFC")
		},
		Open: func(src io.ReadSeeker) (Container, error) { return aiff.Open(src) },
	})
	r.Register(Format{
		Name:       "wav",
		Extensions: []string{"wav", "wave"},
		Sniff: func(h []byte) bool {
			return len(h) >= 12 && string(h[0:4]) == "RIFF" && string(h[8:12]) == "WAVE"
		},
		Open: func(src io.ReadSeeker) (Container, error) { return wav.Open(src) },
	})
	return r
}

// sniffMP3 accepts an ID3v2 tag or an MPEG audio frame sync.
// FLAC files with a leading ID3v2 tag need the "flac" hint.
func sniffMP3(h []byte) bool {
	if bytes.HasPrefix(h, []byte("ID3")) {
		return true
	}
	return len(h) >= 2 && h[0] == 0xFF && h[1]&0xE0 == 0xE0
}

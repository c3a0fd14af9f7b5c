package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/drgolem/dmm/pkg/decoders"
)

var probeCmd = &cobra.Command{
	Use:   "probe <audio_file>",
	Short: "Decode a file and print track and packet statistics",
	Long: `Probe selects the container for a file, decodes it to the end without
playing it and reports the selected track, duration, tags and packet
statistics. Useful to check that a file plays before queueing it.

Examples:
  dmm probe song.flac
  dmm probe -v broken.mp3`,
	Args: cobra.ExactArgs(1),
	Run:  runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

type probeStats struct {
	packets  int
	retries  int
	frames   uint64
	lastTime time.Duration
	elapsed  time.Duration
}

func probeDecoder(dec *decoders.Decoder) (st probeStats, err error) {
	tb := dec.Track().Params.TimeBase
	start := time.Now()
	defer func() { st.elapsed = time.Since(start) }()

	for {
		res, buf, pkt, err := dec.DecodeNext()
		if err != nil {
			return st, err
		}
		switch res {
		case decoders.StreamEnd:
			return st, nil
		case decoders.Retry:
			st.retries++
			continue
		}
		st.packets++
		st.frames += uint64(buf.Frames())
		st.lastTime = tb.CalcTime(pkt.Timestamp + pkt.Duration)
	}
}

func runProbe(cmd *cobra.Command, args []string) {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		slog.Error("Failed to open file", "path", path, "error", err)
		os.Exit(1)
	}

	info, err := f.Stat()
	if err != nil {
		slog.Error("Failed to stat file", "path", path, "error", err)
		os.Exit(1)
	}

	tags, _ := decoders.ReadTags(f)

	dec, err := decoders.Open(f, filepath.Ext(path), decoders.WithLogger(slog.Default()))
	if err != nil {
		f.Close()
		slog.Error("Failed to open track", "path", path, "error", err)
		os.Exit(1)
	}
	defer dec.Close()

	track := dec.Track()
	fmt.Printf("File:        %s (%s)\n", path, humanize.IBytes(uint64(info.Size())))
	fmt.Printf("Container:   %s\n", dec.Format())
	fmt.Printf("Track:       #%d %s, %d Hz, %d ch, %d bit\n",
		track.ID, track.Codec, track.Params.SampleRate, track.Params.Channels, track.Params.BitsPerSample)
	if d := dec.Duration(); d > 0 {
		fmt.Printf("Duration:    %s (%s frames)\n", formatClock(d), humanize.Comma(int64(track.Params.NFrames)))
	} else {
		fmt.Printf("Duration:    unknown\n")
	}
	if tags.Title != "" || tags.Artist != "" {
		fmt.Printf("Tags:        %q by %q on %q\n", tags.Title, tags.Artist, tags.Album)
	}

	st, err := probeDecoder(dec)
	fmt.Printf("Packets:     %s decoded, %d skipped\n", humanize.Comma(int64(st.packets)), st.retries)
	fmt.Printf("Frames:      %s (%s decoded)\n", humanize.Comma(int64(st.frames)), formatClock(st.lastTime))
	fmt.Printf("Decode time: %s\n", st.elapsed.Round(time.Millisecond))
	if err != nil {
		slog.Error("Decoding failed", "path", path, "error", err)
		os.Exit(1)
	}
}

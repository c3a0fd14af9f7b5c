package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/drgolem/dmm/internal/cache"
	"github.com/drgolem/dmm/internal/player"
	"github.com/drgolem/dmm/internal/queue"
	"github.com/drgolem/dmm/pkg/decoders"
	"github.com/drgolem/dmm/pkg/types"
)

var (
	playAudio   audioFlags
	playShuffle bool
	playRepeat  string
)

var playCmd = &cobra.Command{
	Use:   "play <file|cache-key> [file|cache-key...]",
	Short: "Play audio files or cached tracks",
	Long: `Play tracks one after another. Each argument is a file path or the key
of a track in the library cache.

Examples:
  # Play an album in order
  dmm play album/*.flac

  # Shuffle and repeat a folder using the oto backend
  dmm play --backend oto --shuffle --repeat all music/*.mp3

  # Use a specific PortAudio device with 32-bit float output
  dmm play -d 0 --format f32 song.wav

Supported Formats:
  WAV, AIFF, FLAC, Ogg Vorbis, MP3`,
	Args: cobra.MinimumNArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playAudio.register(playCmd)
	playCmd.Flags().BoolVar(&playShuffle, "shuffle", false, "Play tracks in random order")
	playCmd.Flags().StringVar(&playRepeat, "repeat", "off", "Repeat mode: off, all or one")
}

// trackRef is a playable file and the format hint derived from its name.
type trackRef struct {
	Path string
	Hint string
}

// resolveTracks maps arguments to files, looking up cache keys in lookup.
func resolveTracks(args []string, lookup cache.Lookup) []trackRef {
	var refs []trackRef
	for _, arg := range args {
		path := arg
		if _, err := os.Stat(arg); err != nil {
			key, kerr := cache.ParseKey(arg)
			if kerr != nil {
				slog.Error("Track not found", "arg", arg, "error", err)
				continue
			}
			found, ok := lookup.Find(key)
			if !ok {
				slog.Error("Track not in cache", "key", key.String())
				continue
			}
			path = found
		}
		refs = append(refs, trackRef{Path: path, Hint: filepath.Ext(path)})
	}
	return refs
}

func runPlay(cmd *cobra.Command, args []string) {
	audio := playAudio.apply(cmd, cfg.GetAudioConfig())

	format, err := audio.SampleFormat()
	if err != nil {
		slog.Error("Invalid sample format", "error", err)
		os.Exit(1)
	}
	repeat, err := queue.ParseRepeat(playRepeat)
	if err != nil {
		slog.Error("Invalid repeat mode", "error", err)
		os.Exit(1)
	}

	refs := resolveTracks(args, cache.New(cfg.CacheDir()))
	if len(refs) == 0 {
		slog.Error("Nothing to play")
		os.Exit(1)
	}

	dev, release, err := openDevice(audio)
	if err != nil {
		slog.Error("Failed to open audio device", "error", err)
		os.Exit(1)
	}
	defer release()

	slog.Info("Configuration",
		"backend", audio.Backend,
		"device", dev.Name(),
		"format", format.String(),
		"frames_per_buffer", audio.FramesPerBuffer,
		"buffer", audio.BufferDuration(),
		"track_count", len(refs),
		"shuffle", playShuffle,
		"repeat", repeat.String())

	p := player.New(dev, player.DeviceConfig{
		Format:          format,
		BufferDuration:  audio.BufferDuration(),
		FramesPerBuffer: audio.FramesPerBuffer,
	}, player.WithLogger(slog.Default()))
	defer p.Close()

	// The callback runs on the worker; hand off without blocking it
	completions := make(chan player.TrackComplete, 1)
	if err := p.OnTrackComplete(func(tc player.TrackComplete) {
		select {
		case completions <- tc:
		default:
		}
	}); err != nil {
		slog.Error("Failed to register completion callback", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	q := queue.New(refs, queue.WithShuffle(playShuffle), queue.WithRepeat(repeat))
	played, interrupted := 0, false

	ref, ok := q.Next()
	for ok && !interrupted {
		if err := startTrack(p, ref); err != nil {
			slog.Error("Failed to play track", "file", ref.Path, "error", err)
			ref, ok = q.Skip()
			continue
		}

		statusDone := make(chan struct{})
		go monitorPlayback(p, statusDone)

		select {
		case tc := <-completions:
			close(statusDone)
			played++
			if tc.Err != nil {
				slog.Error("Track failed", "file", ref.Path, "error", tc.Err)
				ref, ok = q.Skip()
				continue
			}
			slog.Info("Track completed", "file", ref.Path, "position", tc.Timestamp)
			ref, ok = q.Next()
		case sig := <-sigChan:
			slog.Info("Signal received, stopping", "signal", sig)
			close(statusDone)
			interrupted = true
			if err := p.Stop(); err != nil {
				slog.Error("Failed to stop player", "error", err)
			}
		}
	}

	if interrupted {
		slog.Info("Playback interrupted")
	} else {
		slog.Info("All tracks completed", "played", played)
	}
	slog.Info("Exiting")
}

// startTrack opens ref, announces it and starts playback.
func startTrack(p *player.Player, ref trackRef) error {
	f, err := os.Open(ref.Path)
	if err != nil {
		return err
	}

	tags, err := decoders.ReadTags(f)
	if err != nil {
		slog.Debug("No tags", "file", ref.Path, "error", err)
	}
	printNowPlaying(ref, tags)

	if err := p.SetTrack(f, ref.Hint); err != nil {
		// the player only takes ownership of sources it could open
		return errors.Join(err, f.Close())
	}
	return p.Play()
}

func printNowPlaying(ref trackRef, tags decoders.Tags) {
	title := tags.Title
	if title == "" {
		title = filepath.Base(ref.Path)
	}
	line := "Now playing: " + title
	if tags.Artist != "" {
		line += " - " + tags.Artist
	}
	if tags.Album != "" {
		line += fmt.Sprintf(" (%s", tags.Album)
		if tags.Year > 0 {
			line += fmt.Sprintf(", %d", tags.Year)
		}
		line += ")"
	}
	fmt.Println(line)
}

// monitorPlayback logs playback status every 2 seconds for any PlaybackMonitor
func monitorPlayback(monitor types.PlaybackMonitor, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status := monitor.GetPlaybackStatus()

			var buffered time.Duration
			if status.SampleRate > 0 && status.Channels > 0 {
				frames := status.BufferedSamples / uint64(status.Channels)
				buffered = time.Duration(frames) * time.Second / time.Duration(status.SampleRate)
			}

			slog.Info("Playback status",
				"title", status.Title,
				"state", status.State,
				"format", fmt.Sprintf("%dHz:%dch:%s", status.SampleRate, status.Channels, status.SampleFormat),
				"position", formatClock(status.Position),
				"duration", formatClock(status.Duration),
				"buffered", buffered.Round(time.Millisecond),
				"buffered_samples", humanize.Comma(int64(status.BufferedSamples)),
				"underruns", humanize.Comma(int64(status.Underruns)))
		case <-done:
			return
		}
	}
}

// formatClock formats d as hh:mm:ss.msec.
func formatClock(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, (ms%3600000)/60000, (ms%60000)/1000, ms%1000)
}

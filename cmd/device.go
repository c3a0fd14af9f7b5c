package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	pa "github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"

	"github.com/drgolem/dmm/internal/config"
	"github.com/drgolem/dmm/pkg/backend/oto"
	"github.com/drgolem/dmm/pkg/backend/portaudio"
	"github.com/drgolem/dmm/pkg/output"
)

// openDevice initializes the configured audio backend. The returned
// function releases it.
func openDevice(audio config.AudioConfig) (output.Device, func(), error) {
	switch audio.Backend {
	case "portaudio":
		slog.Info("Initializing PortAudio")
		if err := pa.Initialize(); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
		}
		slog.Info("PortAudio initialized", "version", pa.GetVersion())
		return portaudio.New(*audio.Device), func() { pa.Terminate() }, nil

	case "oto":
		d := oto.New()
		d.BufferSize = audio.BufferDuration()
		return d, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", audio.Backend)
	}
}

// audioFlags override config values when set on the command line.
type audioFlags struct {
	backend string
	device  int
	format  string
	frames  int
}

func (f *audioFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.backend, "backend", "", "Audio backend: portaudio or oto")
	cmd.Flags().IntVarP(&f.device, "device", "d", 1, "PortAudio output device index")
	cmd.Flags().StringVar(&f.format, "format", "", "Device sample format: u8, s16, s32 or f32")
	cmd.Flags().IntVar(&f.frames, "frames", 0, "Audio frames per buffer")
}

func (f *audioFlags) apply(cmd *cobra.Command, audio config.AudioConfig) config.AudioConfig {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		audio.Backend = strings.ToLower(f.backend)
	}
	if flags.Changed("device") {
		device := f.device
		audio.Device = &device
	}
	if flags.Changed("format") {
		audio.Format = f.format
	}
	if flags.Changed("frames") && f.frames > 0 {
		audio.FramesPerBuffer = f.frames
	}
	return audio
}

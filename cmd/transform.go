package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/drgolem/dmm/internal/transcode"
)

var transformCmd = &cobra.Command{
	Use:   "transform <input_file>",
	Short: "Transform audio file sample rate and format",
	Long: `Transform audio files to 16-bit WAV, optionally resampled and downmixed.
Any format dmm can play is accepted as input.

Examples:
  # Transform MP3 to 48kHz WAV
  dmm transform input.mp3 --new-samplerate 48000 --out output.wav

  # Transform FLAC to 44.1kHz mono WAV
  dmm transform input.flac --new-samplerate 44100 --mono --out output.wav

  # Decode an Ogg Vorbis file at its own rate
  dmm transform input.ogg --new-samplerate 0

Output Format:
  - WAV (16-bit PCM)

Sample Rate Options:
  Common rates: 8000, 16000, 22050, 44100, 48000, 96000, 192000 Hz
  Resampling uses the SoX resampler (libsoxr) at high quality.`,
	Args: cobra.ExactArgs(1),
	Run:  runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().Int("new-samplerate", 48000, "Target sample rate in Hz, 0 keeps the source rate")
	transformCmd.Flags().String("out", "out_transformed.wav", "Output WAV file path")
	transformCmd.Flags().Bool("mono", false, "Convert output to mono signal (average channels)")
}

func runTransform(cmd *cobra.Command, args []string) {
	inFileName := args[0]

	newSampleRate, err := cmd.Flags().GetInt("new-samplerate")
	if err != nil {
		slog.Error("Failed to get new-samplerate flag", "error", err)
		os.Exit(1)
	}
	outFileName, err := cmd.Flags().GetString("out")
	if err != nil {
		slog.Error("Failed to get out flag", "error", err)
		os.Exit(1)
	}
	convertToMono, err := cmd.Flags().GetBool("mono")
	if err != nil {
		slog.Error("Failed to get mono flag", "error", err)
		os.Exit(1)
	}

	if newSampleRate < 0 || newSampleRate > transcode.MaxSampleRate {
		slog.Error("Invalid sample rate", "rate", newSampleRate,
			"valid_range", fmt.Sprintf("0-%d", transcode.MaxSampleRate))
		os.Exit(1)
	}

	in, err := os.Open(inFileName)
	if err != nil {
		slog.Error("Failed to open input file", "path", inFileName, "error", err)
		os.Exit(1)
	}

	out, err := os.OpenFile(outFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		in.Close()
		slog.Error("Failed to create output file", "path", outFileName, "error", err)
		os.Exit(1)
	}

	slog.Info("Audio transformation starting",
		"input_file", inFileName,
		"output_sample_rate", newSampleRate,
		"output_mono", convertToMono,
		"output_file", outFileName)

	// the decoder closes the input file
	pcm, err := transcode.File(out, in, filepath.Ext(inFileName), transcode.Options{
		Rate:   newSampleRate,
		Mono:   convertToMono,
		Logger: slog.Default(),
	})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		slog.Error("Transformation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Transformation complete",
		"output_frames", pcm.Frames(),
		"output_sample_rate", pcm.Spec.Rate,
		"output_channels", pcm.Spec.Channels)
}

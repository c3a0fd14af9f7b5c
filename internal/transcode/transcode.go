// Package transcode decodes a track to 16-bit PCM, optionally resamples and
// downmixes it, and writes the result as WAV.
package transcode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	wav "github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"

	"github.com/drgolem/dmm/pkg/decoders"
	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

// MaxSampleRate bounds the accepted target rate.
const MaxSampleRate = 384000

// ErrInvalidRate is returned for target rates outside 1..MaxSampleRate.
var ErrInvalidRate = errors.New("invalid sample rate")

// PCM is interleaved signed 16-bit audio.
type PCM struct {
	Spec    types.SignalSpec
	Samples []int16
}

// Frames returns the number of frames in p.
func (p PCM) Frames() int {
	if p.Spec.Channels == 0 {
		return 0
	}
	return len(p.Samples) / p.Spec.Channels
}

// Stats counts what happened while decoding.
type Stats struct {
	Packets int
	Retries int
}

// DecodeAll reads dec to the end of the stream.
func DecodeAll(dec *decoders.Decoder) (PCM, Stats, error) {
	var (
		pcm     PCM
		stats   Stats
		scratch []int16
	)
	pcm.Spec = dec.Track().Params.Spec()

	for {
		res, buf, _, err := dec.DecodeNext()
		if err != nil {
			return pcm, stats, err
		}
		switch res {
		case decoders.StreamEnd:
			return pcm, stats, nil
		case decoders.Retry:
			stats.Retries++
			continue
		}

		if buf.Spec != pcm.Spec {
			return pcm, stats, fmt.Errorf("signal changed mid-stream from %v to %v", pcm.Spec, buf.Spec)
		}
		stats.Packets++
		scratch = output.Interleave(scratch, buf)
		pcm.Samples = append(pcm.Samples, scratch...)
	}
}

// Resample converts p to rate with the SoX resampler.
func Resample(p PCM, rate int) (PCM, error) {
	if rate <= 0 || rate > MaxSampleRate {
		return PCM{}, fmt.Errorf("%w: %d, valid range 1-%d", ErrInvalidRate, rate, MaxSampleRate)
	}
	if rate == p.Spec.Rate {
		return p, nil
	}

	var resampled bytes.Buffer
	w := bufio.NewWriter(&resampled)

	r, err := soxr.New(w, float64(p.Spec.Rate), float64(rate), p.Spec.Channels, soxr.I16, soxr.HighQ)
	if err != nil {
		return PCM{}, fmt.Errorf("failed to create resampler: %w", err)
	}

	raw := make([]byte, len(p.Samples)*2)
	sample.Encode(raw, p.Samples)
	if _, err := r.Write(raw); err != nil {
		r.Close()
		return PCM{}, fmt.Errorf("failed to resample: %w", err)
	}
	if err := r.Close(); err != nil {
		return PCM{}, fmt.Errorf("failed to close resampler: %w", err)
	}
	if err := w.Flush(); err != nil {
		return PCM{}, fmt.Errorf("failed to flush buffer: %w", err)
	}

	out := PCM{
		Spec:    types.SignalSpec{Rate: rate, Channels: p.Spec.Channels},
		Samples: make([]int16, resampled.Len()/2),
	}
	sample.Decode(out.Samples, resampled.Bytes())
	return out, nil
}

// Downmix averages all channels of p into one.
func Downmix(p PCM) PCM {
	channels := p.Spec.Channels
	if channels <= 1 {
		return p
	}

	frames := p.Frames()
	mono := make([]int16, frames)
	for i := range frames {
		var sum int32
		for _, v := range p.Samples[i*channels : (i+1)*channels] {
			sum += int32(v)
		}
		mono[i] = int16(sum / int32(channels))
	}
	return PCM{
		Spec:    types.SignalSpec{Rate: p.Spec.Rate, Channels: 1},
		Samples: mono,
	}
}

// WriteWAV writes p as a 16-bit PCM WAV stream.
func WriteWAV(w io.Writer, p PCM) error {
	ww := wav.NewWriter(w, uint32(p.Frames()), uint16(p.Spec.Channels), uint32(p.Spec.Rate), 16)

	raw := make([]byte, len(p.Samples)*2)
	sample.Encode(raw, p.Samples)
	if _, err := ww.Write(raw); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}
	return nil
}

// Options controls File.
type Options struct {
	Rate   int // target rate, 0 keeps the source rate
	Mono   bool
	Logger *slog.Logger
}

// File decodes src and writes the transformed track to dst.
func File(dst io.Writer, src io.ReadSeeker, hint string, opts Options) (PCM, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dec, err := decoders.Open(src, hint, decoders.WithLogger(logger))
	if err != nil {
		return PCM{}, err
	}
	defer dec.Close()

	logger.Info("Decoding audio data",
		"format", dec.Format(),
		"sample_rate", dec.Track().Params.SampleRate,
		"channels", dec.Track().Params.Channels)

	pcm, stats, err := DecodeAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("failed to decode audio: %w", err)
	}
	logger.Info("Decoding complete",
		"frames", pcm.Frames(),
		"packets", stats.Packets,
		"retries", stats.Retries)

	if opts.Rate != 0 && opts.Rate != pcm.Spec.Rate {
		logger.Info("Resampling audio", "from_rate", pcm.Spec.Rate, "to_rate", opts.Rate)
		if pcm, err = Resample(pcm, opts.Rate); err != nil {
			return PCM{}, err
		}
	}

	if opts.Mono && pcm.Spec.Channels > 1 {
		logger.Info("Converting to mono", "input_channels", pcm.Spec.Channels)
		pcm = Downmix(pcm)
	}

	if err := WriteWAV(dst, pcm); err != nil {
		return PCM{}, err
	}
	return pcm, nil
}

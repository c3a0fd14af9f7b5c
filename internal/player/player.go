// Package player implements a single-track playback controller.
//
// A Player owns one worker goroutine, locked to its OS thread, that
// decodes the current track and feeds the output stream. Callers talk to it
// through an ordered command inbox and observe it through published atomics:
//
//	caller ──commands──▶ worker ──Bridge.Write──▶ ring ──fill──▶ device thread
//	   ▲                   │
//	   └──state/time───────┘
//
// The worker and the device thread share only the ring buffer.
package player

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/dmm/pkg/decoders"
	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
	"github.com/drgolem/dmm/pkg/types"
)

// ErrClosed is returned by commands issued after Close.
var ErrClosed = errors.New("player closed")

// State is the published playback state.
type State int32

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// DeviceConfig is negotiated once, when the Player is created.
type DeviceConfig struct {
	// Format is the device-native sample format every track is converted to.
	Format sample.Format
	// BufferDuration is the ring length. Zero uses output.DefaultBufferDuration.
	BufferDuration time.Duration
	// FramesPerBuffer is the device callback size hint.
	FramesPerBuffer int
	// PollInterval is the producer back-off while the ring is full.
	PollInterval time.Duration
}

// DefaultDeviceConfig returns 16-bit output with the default ring length.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Format:          sample.S16,
		BufferDuration:  output.DefaultBufferDuration,
		FramesPerBuffer: output.DefaultFramesPerBuffer,
	}
}

// TrackComplete describes how a track finished. Err is nil at the natural
// end of the stream.
type TrackComplete struct {
	Err       error
	Timestamp time.Duration
	Duration  time.Duration
}

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger for the worker and its output streams.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithRegistry sets the container registry used to probe tracks.
func WithRegistry(r *decoders.Registry) Option {
	return func(p *Player) { p.registry = r }
}

// WithInboxSize sets the command inbox capacity.
func WithInboxSize(n int) Option {
	return func(p *Player) { p.inboxSize = n }
}

// Player is a playback controller for one track at a time.
// Its methods are safe for concurrent use.
type Player struct {
	dev       output.Device
	cfg       DeviceConfig
	logger    *slog.Logger
	registry  *decoders.Registry
	inboxSize int

	mu     sync.RWMutex // guards sends on inbox against Close
	closed bool
	inbox  chan command
	errs   chan error
	done   chan struct{}

	// Published by the worker, read by anyone
	state     atomic.Int32
	duration  atomic.Int64
	timestamp atomic.Int64
	title     atomic.Pointer[string]
	out       atomic.Pointer[outputRef]

	// Worker-owned
	w worker
}

type outputRef struct {
	out output.Output
}

// New starts a Player writing to dev with the negotiated cfg.
func New(dev output.Device, cfg DeviceConfig, opts ...Option) *Player {
	p := &Player{
		dev:       dev,
		cfg:       cfg,
		logger:    slog.Default(),
		registry:  decoders.DefaultRegistry,
		inboxSize: 64,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.BufferDuration <= 0 {
		p.cfg.BufferDuration = output.DefaultBufferDuration
	}

	p.inbox = make(chan command, p.inboxSize)
	p.errs = make(chan error, 8)
	p.done = make(chan struct{})
	p.state.Store(int32(Stopped))

	go p.run()
	return p
}

func (p *Player) send(cmd command) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.inbox <- cmd
	return nil
}

// SetTrack stops any current playback and makes src the next track. The
// source is probed immediately using hint; on success the Player owns src
// and closes it when the track is done, if it implements io.Closer.
//
// The track does not start until Play.
func (p *Player) SetTrack(src io.ReadSeeker, hint string) error {
	if err := p.Stop(); err != nil {
		return err
	}

	dec, err := decoders.Open(src, hint,
		decoders.WithLogger(p.logger),
		decoders.WithRegistry(p.registry))
	if err != nil {
		return fmt.Errorf("failed to open track: %w", err)
	}

	if err := p.send(command{kind: cmdSetSource, dec: dec}); err != nil {
		dec.Close()
		return err
	}
	return nil
}

// Play resumes a paused track or starts the pending one.
func (p *Player) Play() error {
	switch p.State() {
	case Paused:
		return p.send(command{kind: cmdPlay})
	case Stopped:
		return p.send(command{kind: cmdStart})
	}
	return nil
}

// Pause pauses a playing track.
func (p *Player) Pause() error {
	if p.State() == Playing {
		return p.send(command{kind: cmdPause})
	}
	return nil
}

// Stop abandons the current track without a completion notification.
func (p *Player) Stop() error {
	switch p.State() {
	case Playing, Paused:
		return p.send(command{kind: cmdStop})
	}
	return nil
}

// Toggle pauses a playing track and plays otherwise.
func (p *Player) Toggle() error {
	if p.State() == Playing {
		return p.Pause()
	}
	return p.Play()
}

// OnTrackComplete replaces the completion callback. fn runs on the worker
// goroutine and must not block; forward to a channel for anything slow.
func (p *Player) OnTrackComplete(fn func(TrackComplete)) error {
	return p.send(command{kind: cmdSetOnComplete, onComplete: fn})
}

// Errors delivers fatal track errors. Errors are dropped if nobody reads.
func (p *Player) Errors() <-chan error { return p.errs }

// State returns the published playback state.
func (p *Player) State() State { return State(p.state.Load()) }

// Duration returns the total length of the current track, 0 if unknown.
func (p *Player) Duration() time.Duration { return time.Duration(p.duration.Load()) }

// Timestamp returns the position of the most recently decoded packet.
func (p *Player) Timestamp() time.Duration { return time.Duration(p.timestamp.Load()) }

// GetPlaybackStatus implements types.PlaybackMonitor.
func (p *Player) GetPlaybackStatus() types.PlaybackStatus {
	status := types.PlaybackStatus{
		State:    p.State().String(),
		Position: p.Timestamp(),
		Duration: p.Duration(),
	}
	if title := p.title.Load(); title != nil {
		status.Title = *title
	}
	if ref := p.out.Load(); ref != nil {
		spec := ref.out.Spec()
		status.SampleRate = spec.Rate
		status.Channels = spec.Channels
		status.SampleFormat = ref.out.Format().String()
		status.BufferedSamples = uint64(ref.out.Buffered())
		status.Underruns = ref.out.Stats().Underruns
	}
	return status
}

// Status is shorthand for GetPlaybackStatus.
func (p *Player) Status() types.PlaybackStatus { return p.GetPlaybackStatus() }

// Close stops the worker and releases the output stream. It waits for the
// worker to exit. Close is idempotent.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	<-p.done
	return nil
}

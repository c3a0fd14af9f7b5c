package player

import (
	"fmt"
	"runtime"
	"time"

	"github.com/drgolem/dmm/pkg/decoders"
	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/types"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdSetSource
	cmdPlay
	cmdPause
	cmdStop
	cmdSetOnComplete
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdSetSource:
		return "set-source"
	case cmdPlay:
		return "play"
	case cmdPause:
		return "pause"
	case cmdStop:
		return "stop"
	case cmdSetOnComplete:
		return "set-on-complete"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

type command struct {
	kind       commandKind
	dec        *decoders.Decoder
	onComplete func(TrackComplete)
}

// worker holds the state only the worker goroutine touches.
type worker struct {
	pending    *decoders.Decoder
	onComplete func(TrackComplete)
	out        output.Output
}

// outcome of applying a command inside the play loop
type outcome int

const (
	keepPlaying outcome = iota
	stopTrack
	exitWorker
)

func (p *Player) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(p.done)
	defer p.releaseOutput()

	for cmd := range p.inbox {
		switch cmd.kind {
		case cmdSetSource:
			p.replacePending(cmd.dec)
			continue
		case cmdSetOnComplete:
			p.w.onComplete = cmd.onComplete
			continue
		case cmdStart:
			if p.w.pending == nil {
				p.logger.Error("Cannot start playback with no source set")
				continue
			}
		default:
			p.logger.Debug("Ignoring command while stopped", "command", cmd.kind.String())
			continue
		}

		dec := p.w.pending
		p.w.pending = nil
		if p.playTrack(dec) == exitWorker {
			break
		}
	}

	if p.w.pending != nil {
		p.closeDecoder(p.w.pending)
		p.w.pending = nil
	}
	p.state.Store(int32(Stopped))
	p.logger.Debug("Player worker exited")
}

func (p *Player) replacePending(dec *decoders.Decoder) {
	if p.w.pending != nil {
		p.closeDecoder(p.w.pending)
	}
	p.w.pending = dec
}

func (p *Player) closeDecoder(dec *decoders.Decoder) {
	if err := dec.Close(); err != nil {
		p.logger.Warn("Failed to close decoder", "error", err)
	}
}

// playTrack runs the decode loop for one track.
func (p *Player) playTrack(dec *decoders.Decoder) outcome {
	defer p.closeDecoder(dec)

	track := dec.Track()
	p.duration.Store(int64(dec.Duration()))
	p.timestamp.Store(0)
	p.title.Store(nil)
	p.publishTitle(dec)
	p.state.Store(int32(Playing))

	p.logger.Info("Playback started",
		"format", dec.Format(),
		"codec", track.Codec.String(),
		"sample_rate", track.Params.SampleRate,
		"channels", track.Params.Channels,
		"duration", dec.Duration())

	for {
		switch p.drainInbox() {
		case stopTrack:
			p.releaseOutput()
			p.state.Store(int32(Stopped))
			p.logger.Debug("Playback stopped")
			return stopTrack
		case exitWorker:
			return exitWorker
		}

		res, buf, pkt, err := dec.DecodeNext()
		if err != nil {
			p.fail(err)
			return stopTrack
		}

		switch res {
		case decoders.Retry:
			continue
		case decoders.StreamEnd:
			p.finish()
			return stopTrack
		}

		p.timestamp.Store(int64(track.Params.TimeBase.CalcTime(pkt.Timestamp)))
		if p.title.Load() == nil {
			p.publishTitle(dec)
		}

		if err := p.write(buf); err != nil {
			p.fail(err)
			return stopTrack
		}
	}
}

// drainInbox applies every queued command without blocking.
func (p *Player) drainInbox() outcome {
	for {
		select {
		case cmd, ok := <-p.inbox:
			if !ok {
				p.flushOutput()
				return exitWorker
			}
			if o := p.applyPlaying(cmd); o != keepPlaying {
				return o
			}
		default:
			return keepPlaying
		}
	}
}

func (p *Player) applyPlaying(cmd command) outcome {
	switch cmd.kind {
	case cmdPlay:
		p.logger.Warn("Received play command, but audio is already playing")
	case cmdPause:
		return p.pause()
	case cmdStop:
		return stopTrack
	case cmdSetOnComplete:
		p.w.onComplete = cmd.onComplete
	default:
		p.defect(cmd, Playing)
	}
	return keepPlaying
}

// pause blocks on the inbox until the track is resumed or stopped.
func (p *Player) pause() outcome {
	if p.w.out != nil {
		p.w.out.HintPause()
	}
	p.state.Store(int32(Paused))
	p.logger.Debug("Playback paused")

	for {
		cmd, ok := <-p.inbox
		if !ok {
			return exitWorker
		}
		switch cmd.kind {
		case cmdPause:
			p.logger.Warn("Received pause command, but audio is already paused")
		case cmdPlay:
			if p.w.out != nil {
				p.w.out.HintPlay()
			}
			p.state.Store(int32(Playing))
			p.logger.Debug("Playback resumed")
			return keepPlaying
		case cmdStop:
			return stopTrack
		case cmdSetOnComplete:
			p.w.onComplete = cmd.onComplete
		default:
			p.defect(cmd, Paused)
		}
	}
}

// defect handles a command the state machine does not allow in state.
// The offered source, if any, is closed and state is left untouched.
func (p *Player) defect(cmd command, state State) {
	p.logger.Error("Command not allowed in current state, call Stop first",
		"command", cmd.kind.String(),
		"state", state.String())
	if cmd.dec != nil {
		p.closeDecoder(cmd.dec)
	}
}

// write opens the output lazily and pushes one decoded buffer.
func (p *Player) write(buf *types.AudioBuffer) error {
	if p.w.out != nil && p.w.out.Spec() != buf.Spec {
		p.logger.Debug("Signal spec changed, reopening output",
			"old", p.w.out.Spec().String(),
			"new", buf.Spec.String())
		p.releaseOutput()
	}

	if p.w.out == nil {
		out, err := output.OpenFormat(p.cfg.Format, p.dev, buf.Spec, output.Options{
			BufferDuration:  p.cfg.BufferDuration,
			FramesPerBuffer: p.cfg.FramesPerBuffer,
			PollInterval:    p.cfg.PollInterval,
			Logger:          p.logger,
		})
		if err != nil {
			return err
		}
		p.w.out = out
		p.out.Store(&outputRef{out: out})
	}

	// Start before writing: a first buffer larger than the ring would
	// otherwise block forever on a stopped stream
	if !p.w.out.Running() {
		if err := p.w.out.Start(); err != nil {
			return err
		}
	}

	if err := p.w.out.Write(buf); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	return nil
}

// finish handles the natural end of a track. The ring is played out and
// the output kept open for the next track.
func (p *Player) finish() {
	if p.w.out != nil {
		timeout := p.cfg.BufferDuration + 100*time.Millisecond
		if !p.w.out.Drain(timeout) {
			p.logger.Debug("Output did not drain before timeout", "timeout", timeout)
		}
		p.w.out.HintPause()
	}
	p.state.Store(int32(Stopped))
	p.logger.Info("Playback finished", "position", p.Timestamp())
	p.notify(nil)
}

// fail aborts the track on a fatal error.
func (p *Player) fail(err error) {
	p.releaseOutput()
	p.state.Store(int32(Stopped))
	p.logger.Error("Playback failed", "error", err)

	select {
	case p.errs <- err:
	default:
		p.logger.Debug("Error channel full, dropping error", "error", err)
	}
	p.notify(err)
}

func (p *Player) notify(err error) {
	if p.w.onComplete == nil {
		return
	}
	p.w.onComplete(TrackComplete{
		Err:       err,
		Timestamp: p.Timestamp(),
		Duration:  p.Duration(),
	})
}

// flushOutput stops the hardware stream without releasing it.
func (p *Player) flushOutput() {
	if p.w.out != nil {
		p.w.out.Flush()
	}
}

// releaseOutput flushes and closes the output stream.
func (p *Player) releaseOutput() {
	if p.w.out == nil {
		return
	}
	p.w.out.Flush()
	if err := p.w.out.Close(); err != nil {
		p.logger.Warn("Failed to close audio output", "error", err)
	}
	p.w.out = nil
	p.out.Store(nil)
}

// publishTitle publishes the TITLE tag of the latest metadata, if any.
func (p *Player) publishTitle(dec *decoders.Decoder) {
	rev, ok := dec.Metadata()
	if !ok {
		return
	}
	if title, ok := rev.Value("TITLE"); ok {
		p.title.Store(&title)
	}
}

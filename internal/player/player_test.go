package player

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgolem/dmm/internal/audiotest"
	"github.com/drgolem/dmm/pkg/decoders"
	"github.com/drgolem/dmm/pkg/output"
	"github.com/drgolem/dmm/pkg/sample"
)

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig() DeviceConfig {
	return DeviceConfig{
		Format:          sample.S16,
		BufferDuration:  200 * time.Millisecond,
		FramesPerBuffer: 256,
		PollInterval:    time.Millisecond,
	}
}

func newTestPlayer(t *testing.T, speed float64) (*Player, *audiotest.Device) {
	t.Helper()
	dev := audiotest.NewDevice(speed)
	p := New(dev, testConfig(), WithLogger(quiet))
	t.Cleanup(func() { p.Close() })
	return p, dev
}

func track(t *testing.T, rate int, d time.Duration) *audiotest.ReadCloser {
	t.Helper()
	return audiotest.NewReadCloser(audiotest.WAV(t, rate, 1, d, audiotest.Sine(rate, 440)))
}

// completions collects TrackComplete notifications.
func completions(t *testing.T, p *Player) <-chan TrackComplete {
	t.Helper()
	ch := make(chan TrackComplete, 16)
	require.NoError(t, p.OnTrackComplete(func(tc TrackComplete) { ch <- tc }))
	return ch
}

func waitState(t *testing.T, p *Player, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.State() == want },
		waitFor, tick, "state never became %s", want)
}

func assertNoCompletion(t *testing.T, done <-chan TrackComplete, d time.Duration) {
	t.Helper()
	select {
	case tc := <-done:
		t.Fatalf("unexpected completion: %+v", tc)
	case <-time.After(d):
	}
}

func TestPlayToCompletion(t *testing.T) {
	p, dev := newTestPlayer(t, 20)
	done := completions(t, p)

	src := track(t, 8000, 5*time.Second)
	require.NoError(t, p.SetTrack(src, "wav"))
	assert.Equal(t, Stopped, p.State(), "SetTrack does not start playback")
	require.NoError(t, p.Play())

	var last time.Duration
	var tc TrackComplete
	deadline := time.After(waitFor)
poll:
	for {
		select {
		case tc = <-done:
			break poll
		case <-deadline:
			t.Fatal("track never completed")
		case <-time.After(tick):
			if p.State() == Playing {
				ts := p.Timestamp()
				require.GreaterOrEqual(t, ts, last, "timestamp went backwards")
				last = ts
				assert.Equal(t, 5*time.Second, p.Duration())
			}
		}
	}

	require.NoError(t, tc.Err)
	assert.Equal(t, 5*time.Second, tc.Duration)
	assert.InDelta(t, float64(5*time.Second), float64(tc.Timestamp), float64(600*time.Millisecond))
	assert.InDelta(t, float64(tc.Timestamp), float64(last), float64(600*time.Millisecond))
	assert.Equal(t, Stopped, p.State())

	assertNoCompletion(t, done, 200*time.Millisecond)
	assert.Eventually(t, src.Closed, waitFor, tick, "source closed after the track")

	// Output is kept for the next track, paused
	hw := dev.Last()
	require.NotNil(t, hw)
	assert.False(t, hw.Closed())
	assert.False(t, hw.Running())
	assert.GreaterOrEqual(t, hw.PulledBytes(), uint64(5*8000*2))
}

func TestPauseResume(t *testing.T) {
	p, dev := newTestPlayer(t, 2)
	done := completions(t, p)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)
	require.Eventually(t, func() bool { return p.Timestamp() > 0 }, waitFor, tick)

	require.NoError(t, p.Pause())
	waitState(t, p, Paused)
	assert.False(t, dev.Last().Running(), "hardware stream paused")

	ts := p.Timestamp()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, ts, p.Timestamp(), "timestamp frozen while paused")

	require.NoError(t, p.Play())
	waitState(t, p, Playing)
	assert.True(t, dev.Last().Running())
	require.Eventually(t, func() bool { return p.Timestamp() > ts }, waitFor, tick)

	assertNoCompletion(t, done, 50*time.Millisecond)

	require.NoError(t, p.Stop())
	waitState(t, p, Stopped)
	assertNoCompletion(t, done, 100*time.Millisecond)
}

func TestStopMidTrack(t *testing.T) {
	p, dev := newTestPlayer(t, 1)
	done := completions(t, p)

	src := track(t, 8000, 5*time.Second)
	require.NoError(t, p.SetTrack(src, "wav"))
	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.Timestamp() > 0 }, waitFor, tick)

	require.NoError(t, p.Stop())
	waitState(t, p, Stopped)

	assert.Eventually(t, func() bool { return dev.Last().Closed() }, waitFor, tick,
		"hardware stream released on stop")
	assert.Eventually(t, src.Closed, waitFor, tick)
	assertNoCompletion(t, done, 200*time.Millisecond)
}

func TestStopWhilePaused(t *testing.T) {
	p, dev := newTestPlayer(t, 1)
	done := completions(t, p)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)
	require.NoError(t, p.Pause())
	waitState(t, p, Paused)

	require.NoError(t, p.Stop())
	waitState(t, p, Stopped)
	assert.Eventually(t, func() bool { return dev.Last().Closed() }, waitFor, tick)
	assertNoCompletion(t, done, 100*time.Millisecond)
}

func TestRepeatedCommandsAreNoOps(t *testing.T) {
	p, _ := newTestPlayer(t, 1)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)

	// Bypass the state gate so the worker sees the redundant commands
	require.NoError(t, p.send(command{kind: cmdPlay}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Playing, p.State())

	require.NoError(t, p.Pause())
	waitState(t, p, Paused)
	require.NoError(t, p.send(command{kind: cmdPause}))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Paused, p.State())

	// Caller-side gating makes these no-ops
	require.NoError(t, p.Pause())
	assert.Equal(t, Paused, p.State())

	require.NoError(t, p.Toggle())
	waitState(t, p, Playing)
	require.NoError(t, p.Toggle())
	waitState(t, p, Paused)
}

func TestStrayCommandsWhileStopped(t *testing.T) {
	p, dev := newTestPlayer(t, 1)

	require.NoError(t, p.send(command{kind: cmdPlay}))
	require.NoError(t, p.send(command{kind: cmdPause}))
	require.NoError(t, p.send(command{kind: cmdStop}))
	// Start with no source set
	require.NoError(t, p.Play())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, Stopped, p.State())
	assert.Empty(t, dev.Streams())
}

func TestSetSourceWhilePlayingIsRejected(t *testing.T) {
	p, _ := newTestPlayer(t, 1)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)

	other := track(t, 8000, time.Second)
	dec, err := decoders.Open(other, "wav")
	require.NoError(t, err)
	require.NoError(t, p.send(command{kind: cmdSetSource, dec: dec}))

	assert.Eventually(t, other.Closed, waitFor, tick, "offered source is closed")
	assert.Equal(t, Playing, p.State())
}

func TestTrackSequence(t *testing.T) {
	p, dev := newTestPlayer(t, 20)
	done := completions(t, p)

	for i := 0; i < 3; i++ {
		require.NoError(t, p.SetTrack(track(t, 8000, 500*time.Millisecond), "wav"))
		require.NoError(t, p.Play())

		select {
		case tc := <-done:
			require.NoError(t, tc.Err, "track %d", i)
			assert.Equal(t, 500*time.Millisecond, tc.Duration)
		case <-time.After(waitFor):
			t.Fatalf("track %d never completed", i)
		}
		waitState(t, p, Stopped)
	}

	assert.Len(t, dev.Streams(), 1, "output reused across tracks with the same spec")

	// A different signal spec replaces the output
	require.NoError(t, p.SetTrack(track(t, 16000, 500*time.Millisecond), "wav"))
	require.NoError(t, p.Play())
	select {
	case tc := <-done:
		require.NoError(t, tc.Err)
	case <-time.After(waitFor):
		t.Fatal("track never completed")
	}

	streams := dev.Streams()
	require.Len(t, streams, 2)
	assert.True(t, streams[0].Closed())
	assert.Equal(t, 16000, streams[1].Config().Spec.Rate)
}

func TestSetTrackStopsCurrentTrack(t *testing.T) {
	p, _ := newTestPlayer(t, 1)
	done := completions(t, p)

	first := track(t, 8000, 5*time.Second)
	require.NoError(t, p.SetTrack(first, "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	waitState(t, p, Stopped)
	assert.Eventually(t, first.Closed, waitFor, tick)
	assertNoCompletion(t, done, 100*time.Millisecond)

	require.NoError(t, p.Play())
	waitState(t, p, Playing)
}

func TestDeviceFailureEndsTrack(t *testing.T) {
	p, dev := newTestPlayer(t, 20)
	dev.FailStart = errors.New("device unplugged")
	done := completions(t, p)

	require.NoError(t, p.SetTrack(track(t, 8000, time.Second), "wav"))
	require.NoError(t, p.Play())

	select {
	case tc := <-done:
		require.Error(t, tc.Err)
		assert.ErrorIs(t, tc.Err, output.ErrOpenFailed)
	case <-time.After(waitFor):
		t.Fatal("no completion for failed track")
	}

	select {
	case err := <-p.Errors():
		assert.ErrorIs(t, err, output.ErrOpenFailed)
	case <-time.After(waitFor):
		t.Fatal("no error published")
	}
	assert.Equal(t, Stopped, p.State())
	assert.True(t, dev.Last().Closed(), "failed output is released")

	// The worker survives and plays the next track
	dev.FailStart = nil
	require.NoError(t, p.SetTrack(track(t, 8000, 200*time.Millisecond), "wav"))
	require.NoError(t, p.Play())
	select {
	case tc := <-done:
		assert.NoError(t, tc.Err)
	case <-time.After(waitFor):
		t.Fatal("second track never completed")
	}
}

func TestUnsupportedDeviceFormat(t *testing.T) {
	dev := audiotest.NewDevice(20)
	cfg := testConfig()
	cfg.Format = sample.FormatInvalid
	p := New(dev, cfg, WithLogger(quiet))
	defer p.Close()
	done := completions(t, p)

	require.NoError(t, p.SetTrack(track(t, 8000, time.Second), "wav"))
	require.NoError(t, p.Play())

	select {
	case tc := <-done:
		assert.ErrorIs(t, tc.Err, output.ErrUnsupportedFormat)
	case <-time.After(waitFor):
		t.Fatal("no completion")
	}
	assert.Empty(t, dev.Streams())
}

func TestSetTrackProbeFailure(t *testing.T) {
	p, _ := newTestPlayer(t, 1)

	src := audiotest.NewReadCloser(bytes.NewReader([]byte("not audio at all")))
	err := p.SetTrack(src, "")
	assert.ErrorIs(t, err, decoders.ErrUnsupportedFormat)
	assert.False(t, src.Closed())
	assert.Equal(t, Stopped, p.State())
}

func TestStatus(t *testing.T) {
	p, _ := newTestPlayer(t, 1)

	status := p.Status()
	assert.Equal(t, "stopped", status.State)
	assert.Zero(t, status.SampleRate)

	require.NoError(t, p.SetTrack(track(t, 8000, 5*time.Second), "wav"))
	require.NoError(t, p.Play())
	require.Eventually(t, func() bool { return p.Status().SampleRate != 0 }, waitFor, tick)

	status = p.GetPlaybackStatus()
	assert.Equal(t, "playing", status.State)
	assert.Equal(t, 8000, status.SampleRate)
	assert.Equal(t, 1, status.Channels)
	assert.Equal(t, "s16", status.SampleFormat)
	assert.Equal(t, 5*time.Second, status.Duration)
}

func TestClose(t *testing.T) {
	dev := audiotest.NewDevice(1)
	p := New(dev, testConfig(), WithLogger(quiet))

	src := track(t, 8000, 5*time.Second)
	require.NoError(t, p.SetTrack(src, "wav"))
	require.NoError(t, p.Play())
	waitState(t, p, Playing)
	require.Eventually(t, func() bool { return dev.Last() != nil }, waitFor, tick)

	require.NoError(t, p.Close())
	assert.Equal(t, Stopped, p.State())
	assert.True(t, dev.Last().Closed())
	assert.True(t, src.Closed())

	require.NoError(t, p.Close(), "Close is idempotent")
	assert.ErrorIs(t, p.OnTrackComplete(func(TrackComplete) {}), ErrClosed)
	assert.ErrorIs(t, p.Play(), ErrClosed)

	other := track(t, 8000, time.Second)
	assert.ErrorIs(t, p.SetTrack(other, "wav"), ErrClosed)
	assert.True(t, other.Closed(), "SetTrack releases the source it could not hand over")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "paused", Paused.String())
	assert.Equal(t, "State(7)", State(7).String())
}

package ringbuffer

import (
	"sync"
	"testing"
	"time"
)

func TestNewKeepsExactCapacity(t *testing.T) {
	tests := []struct {
		input    int
		expected uint64
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{3, 3},
		{17640, 17640}, // 200ms of 44.1kHz stereo
		{19200, 19200}, // 200ms of 48kHz stereo
	}

	for _, tt := range tests {
		rb := New[int16](tt.input)
		if rb.Size() != tt.expected {
			t.Errorf("New(%d): got size %d, want %d", tt.input, rb.Size(), tt.expected)
		}
	}
}

func TestWriteRead(t *testing.T) {
	rb := New[int16](16)

	samples := []int16{1, -2, 3, -4, 5}
	written, err := rb.Write(samples)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if written != len(samples) {
		t.Fatalf("Write: got %d samples, want %d", written, len(samples))
	}

	if rb.AvailableRead() != 5 {
		t.Errorf("AvailableRead: got %d, want 5", rb.AvailableRead())
	}
	if rb.AvailableWrite() != 11 {
		t.Errorf("AvailableWrite: got %d, want 11", rb.AvailableWrite())
	}

	out := make([]int16, 5)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Read returned %d samples, want 5", n)
	}
	for i := range samples {
		if out[i] != samples[i] {
			t.Errorf("Sample %d: got %d, want %d", i, out[i], samples[i])
		}
	}
}

func TestReadPartial(t *testing.T) {
	rb := New[float32](16)

	if _, err := rb.Write([]float32{0.1, 0.2, 0.3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Request more than available
	out := make([]float32, 10)
	n, err := rb.Read(out)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Read returned %d samples, want 3", n)
	}
}

func TestWriteInsufficientSpace(t *testing.T) {
	rb := New[uint8](4)

	written, err := rb.Write(make([]uint8, 5))
	if written != 4 {
		t.Errorf("Expected to write 4 samples, got %d", written)
	}
	if err != nil {
		t.Errorf("Expected nil error for partial write, got %v", err)
	}

	_, err = rb.Write([]uint8{1})
	if err != ErrInsufficientSpace {
		t.Errorf("Expected ErrInsufficientSpace when full, got %v", err)
	}
}

func TestReadEmptyBuffer(t *testing.T) {
	rb := New[int32](16)

	_, err := rb.Read(make([]int32, 1))
	if err != ErrInsufficientData {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}
}

func TestWrapAround(t *testing.T) {
	rb := New[int32](5) // not a power of two

	if _, err := rb.Write([]int32{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Read 3 (leaves 1 in buffer)
	out := make([]int32, 3)
	if _, err := rb.Read(out); err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	// Write 4 more (wraps around)
	written, err := rb.Write([]int32{10, 11, 12, 13})
	if err != nil {
		t.Fatalf("Write after wrap failed: %v", err)
	}
	if written != 4 {
		t.Fatalf("Write after wrap: got %d samples, want 4", written)
	}

	if rb.AvailableRead() != 5 {
		t.Errorf("AvailableRead: got %d, want 5", rb.AvailableRead())
	}

	all := make([]int32, 5)
	n, err := rb.Read(all)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := []int32{4, 10, 11, 12, 13}
	for i := 0; i < n; i++ {
		if all[i] != want[i] {
			t.Errorf("Sample %d: got %d, want %d", i, all[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	rb := New[int16](16)

	if _, err := rb.Write(make([]int16, 3)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rb.Close()

	rb.Reset()

	if rb.AvailableRead() != 0 {
		t.Errorf("After reset: AvailableRead got %d, want 0", rb.AvailableRead())
	}
	if rb.AvailableWrite() != rb.Size() {
		t.Errorf("After reset: AvailableWrite got %d, want %d", rb.AvailableWrite(), rb.Size())
	}
	if rb.Closed() {
		t.Error("After reset: buffer should be open")
	}
}

func TestEmptyWriteRead(t *testing.T) {
	rb := New[int16](16)

	written, err := rb.Write(nil)
	if err != nil || written != 0 {
		t.Errorf("Write(nil): got (%d, %v), want (0, nil)", written, err)
	}

	n, err := rb.Read(nil)
	if err != nil || n != 0 {
		t.Errorf("Read(nil): got (%d, %v), want (0, nil)", n, err)
	}
}

func TestWriteBlockingWaitsForConsumer(t *testing.T) {
	rb := New[int16](8)
	rb.SetPollInterval(time.Millisecond)

	data := make([]int16, 32)
	for i := range data {
		data[i] = int16(i)
	}

	done := make(chan int)
	go func() {
		n, err := rb.WriteBlocking(data)
		if err != nil {
			t.Errorf("WriteBlocking: %v", err)
		}
		done <- n
	}()

	var got []int16
	buf := make([]int16, 3)
	deadline := time.After(2 * time.Second)
	for len(got) < len(data) {
		select {
		case <-deadline:
			t.Fatalf("timed out, received %d samples", len(got))
		default:
		}
		n, _ := rb.Read(buf)
		got = append(got, buf[:n]...)
		time.Sleep(100 * time.Microsecond)
	}

	if n := <-done; n != len(data) {
		t.Errorf("WriteBlocking wrote %d, want %d", n, len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("Sample %d: got %d, want %d", i, got[i], data[i])
		}
	}
}

func TestWriteBlockingReturnsOnClose(t *testing.T) {
	rb := New[int16](4)

	done := make(chan error)
	go func() {
		_, err := rb.WriteBlocking(make([]int16, 10))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	rb.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WriteBlocking did not return after Close")
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	rb := New[int32](250)

	const numSamples = 100000
	const batchSize = 64

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		batch := make([]int32, batchSize)
		for i := 0; i < numSamples; i += batchSize {
			n := min(batchSize, numSamples-i)
			for j := 0; j < n; j++ {
				batch[j] = int32(i + j)
			}
			toWrite := batch[:n]
			for len(toWrite) > 0 {
				written, _ := rb.Write(toWrite)
				toWrite = toWrite[written:]
			}
		}
	}()

	received := 0
	go func() {
		defer wg.Done()
		buf := make([]int32, batchSize)
		for received < numSamples {
			n, err := rb.Read(buf)
			if err == ErrInsufficientData {
				continue
			}
			if err != nil {
				t.Errorf("Consumer read error: %v", err)
				return
			}
			for _, s := range buf[:n] {
				if s != int32(received) {
					t.Errorf("Sample %d: got %d", received, s)
					return
				}
				received++
			}
		}
	}()

	wg.Wait()

	if received != numSamples {
		t.Errorf("Received %d samples, want %d", received, numSamples)
	}
}

func BenchmarkWrite(b *testing.B) {
	rb := New[int16](8192)
	samples := make([]int16, 1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rb.Write(samples)
		rb.Reset()
	}
}

func BenchmarkRead(b *testing.B) {
	rb := New[int16](8192)
	samples := make([]int16, 8192)
	rb.Write(samples)
	out := make([]int16, 512)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = rb.Read(out)
		if rb.AvailableRead() < 512 {
			rb.Reset()
			rb.Write(samples)
		}
	}
}

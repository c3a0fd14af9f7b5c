// Package queue orders the tracks of a listening session.
package queue

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ErrUnknownRepeat is returned by ParseRepeat.
var ErrUnknownRepeat = errors.New("unknown repeat mode")

// RepeatMode defines what happens at the end of a track or of the queue.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return fmt.Sprintf("RepeatMode(%d)", int(m))
	}
}

// ParseRepeat parses "off", "all" or "one".
func ParseRepeat(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return RepeatOff, nil
	case "all":
		return RepeatAll, nil
	case "one", "single":
		return RepeatOne, nil
	}
	return RepeatOff, fmt.Errorf("%w: %q", ErrUnknownRepeat, s)
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	repeat  RepeatMode
	shuffle bool
	rng     *rand.Rand
}

// WithRepeat sets the repeat mode.
func WithRepeat(m RepeatMode) Option {
	return func(o *options) { o.repeat = m }
}

// WithShuffle enables shuffled order.
func WithShuffle(on bool) Option {
	return func(o *options) { o.shuffle = on }
}

// WithRand sets the random source used for shuffling.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// Queue is an ordered list of items with a play position.
// A Queue is not safe for concurrent use.
type Queue[T any] struct {
	items   []T
	order   []int // play order, indexes into items
	pos     int   // index into order; -1 before the first Next
	repeat  RepeatMode
	shuffle bool
	rng     *rand.Rand
}

// New returns a queue over items, positioned before the first one.
func New[T any](items []T, opts ...Option) *Queue[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	q := &Queue[T]{
		items:   append([]T(nil), items...),
		order:   make([]int, len(items)),
		pos:     -1,
		repeat:  o.repeat,
		shuffle: o.shuffle,
		rng:     o.rng,
	}
	for i := range q.order {
		q.order[i] = i
	}
	if q.shuffle {
		q.shuffleFrom(0)
	}
	return q
}

// shuffleFrom shuffles order[from:] in place (Fisher-Yates).
func (q *Queue[T]) shuffleFrom(from int) {
	tail := q.order[from:]
	for i := len(tail) - 1; i > 0; i-- {
		j := q.rng.IntN(i + 1)
		tail[i], tail[j] = tail[j], tail[i]
	}
}

func (q *Queue[T]) Len() int { return len(q.items) }

func (q *Queue[T]) Repeat() RepeatMode { return q.repeat }

func (q *Queue[T]) SetRepeat(m RepeatMode) { q.repeat = m }

func (q *Queue[T]) Shuffle() bool { return q.shuffle }

// SetShuffle switches between shuffled and natural order. The current item
// stays current; when shuffling, only the items after it are reordered.
func (q *Queue[T]) SetShuffle(on bool) {
	if on == q.shuffle {
		return
	}
	q.shuffle = on

	cur := -1
	if q.valid() {
		cur = q.order[q.pos]
	}

	if on {
		if cur >= 0 {
			// move the current item to the front, shuffle the rest
			for i, idx := range q.order {
				if idx == cur {
					q.order[0], q.order[i] = q.order[i], q.order[0]
					break
				}
			}
			q.pos = 0
			q.shuffleFrom(1)
		} else {
			q.shuffleFrom(0)
		}
		return
	}

	for i := range q.order {
		q.order[i] = i
	}
	if cur >= 0 {
		q.pos = cur
	}
}

func (q *Queue[T]) valid() bool {
	return q.pos >= 0 && q.pos < len(q.order)
}

// Current returns the item at the play position.
func (q *Queue[T]) Current() (T, bool) {
	if !q.valid() {
		var zero T
		return zero, false
	}
	return q.items[q.order[q.pos]], true
}

// Next advances after a track has finished on its own. RepeatOne replays
// the current item. At the end of the queue RepeatAll wraps around,
// reshuffling if shuffle is on, and RepeatOff reports false.
func (q *Queue[T]) Next() (T, bool) {
	if q.repeat == RepeatOne && q.valid() {
		return q.Current()
	}
	return q.Skip()
}

// Skip advances to the following item regardless of RepeatOne.
func (q *Queue[T]) Skip() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	if q.pos < len(q.order) {
		q.pos++
	}
	if q.pos >= len(q.order) && q.repeat != RepeatOff {
		if q.shuffle {
			q.shuffleFrom(0)
		}
		q.pos = 0
	}
	return q.Current()
}

// Prev moves back one item. Before the first item it wraps to the last
// with RepeatAll and stays on the first otherwise.
func (q *Queue[T]) Prev() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}

	switch {
	case q.pos > 0:
		q.pos--
	case q.repeat == RepeatAll:
		q.pos = len(q.order) - 1
	default:
		q.pos = 0
	}
	return q.Current()
}

// Items returns the items in play order.
func (q *Queue[T]) Items() []T {
	out := make([]T, len(q.order))
	for i, idx := range q.order {
		out[i] = q.items[idx]
	}
	return out
}

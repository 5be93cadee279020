package playback

import (
	"errors"
	"sync"
)

var ErrSeekOutOfRange = errors.New("seek position outside source")

// Clock is an in-process playhead over a source of fixed duration. It stands
// in for a media element when no real player is attached.
type Clock struct {
	mu       sync.Mutex
	position float64
	duration float64
	playing  bool
}

func NewClock(duration float64) *Clock {
	return &Clock{duration: duration}
}

func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *Clock) Seek(position float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if position < 0 || position > c.duration {
		return ErrSeekOutOfRange
	}
	c.position = position
	return nil
}

func (c *Clock) Play() {
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
}

func (c *Clock) Pause() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

// Advance moves the playhead forward by dt seconds while playing and reports
// whether the end of the source has been reached. Reaching the end pauses.
func (c *Clock) Advance(dt float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return c.position >= c.duration
	}
	c.position += dt
	if c.position >= c.duration {
		c.position = c.duration
		c.playing = false
		return true
	}
	return false
}

func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

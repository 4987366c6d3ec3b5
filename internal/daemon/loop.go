// SPDX-License-Identifier: GPL-3.0-only

// Package daemon runs the polling loop that feeds ambient-light readings into
// the backlight controllers.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// MaxOffset is the highest screen offset accepted through the loop.
	MaxOffset = 127

	// MinOffset is the lowest screen offset accepted through the loop.
	MinOffset = -127

	// DefaultInterval is the sensor polling interval used when none is configured.
	DefaultInterval = 2 * time.Second
)

// ErrStopped is returned for requests made after the loop has exited.
var ErrStopped = errors.New("loop stopped")

// ErrNoScreen is returned for offset requests when no screen backlight is configured.
var ErrNoScreen = errors.New("no screen backlight configured")

// AmbientSensor provides ambient-light readings.
type AmbientSensor interface {
	Read() (uint32, error)
}

// Backlight is a controller driven by ambient-light values.
type Backlight interface {
	Adjust(value uint32) error
	Device() string
}

// ScreenBacklight is a Backlight with a user offset.
type ScreenBacklight interface {
	Backlight
	Increase(amount int8)
	Decrease(amount int8)
	Offset() int8
}

// Loop polls the sensor and adjusts the backlights. Every controller call,
// including offset changes requested from other goroutines, runs on the
// goroutine executing Run, so controllers need no locking.
type Loop struct {
	sensor   AmbientSensor
	screen   ScreenBacklight
	keyboard Backlight
	interval time.Duration
	requests chan func()
	done     chan struct{}

	lastValue uint32
	haveValue bool
}

// Option is a functional option for configuring a Loop.
type Option func(*Loop)

// WithScreen sets the screen backlight controller.
func WithScreen(s ScreenBacklight) Option {
	return func(l *Loop) {
		l.screen = s
	}
}

// WithKeyboard sets the keyboard backlight controller.
func WithKeyboard(k Backlight) Option {
	return func(l *Loop) {
		l.keyboard = k
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// New creates a Loop reading from sensor.
func New(sensor AmbientSensor, opts ...Option) *Loop {
	l := &Loop{
		sensor:   sensor,
		interval: DefaultInterval,
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls immediately and then once per interval until ctx is cancelled.
// A Loop can be run only once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", l.interval).Msg("Polling ambient light sensor")
	l.poll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.poll()
		case fn := <-l.requests:
			interval := l.interval
			fn()
			if l.interval != interval {
				ticker.Reset(l.interval)
				log.Info().Dur("interval", l.interval).Msg("Polling interval changed")
			}
		}
	}
}

func (l *Loop) poll() {
	value, err := l.sensor.Read()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read ambient light sensor")
		return
	}
	l.lastValue, l.haveValue = value, true

	if l.screen != nil {
		l.adjust(l.screen, value)
	}
	if l.keyboard != nil {
		l.adjust(l.keyboard, value)
	}
}

func (l *Loop) adjust(b Backlight, value uint32) {
	if err := b.Adjust(value); err != nil {
		log.Error().Err(err).Str("device", b.Device()).Msg("Failed to adjust backlight")
	}
}

// do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case l.requests <- func() { fn(); close(finished) }:
	case <-l.done:
		return ErrStopped
	}
	<-finished
	return nil
}

// IncreaseOffset raises the screen offset by step, capped at MaxOffset, and
// re-applies the last reading. It returns the resulting offset.
func (l *Loop) IncreaseOffset(step int8) (int8, error) {
	return l.shiftOffset(int(step))
}

// DecreaseOffset lowers the screen offset by step, capped at MinOffset, and
// re-applies the last reading. It returns the resulting offset.
func (l *Loop) DecreaseOffset(step int8) (int8, error) {
	return l.shiftOffset(-int(step))
}

// ResetOffset sets the screen offset back to zero.
func (l *Loop) ResetOffset() (int8, error) {
	return l.setOffset(func(int) int { return 0 })
}

// Offset returns the current screen offset.
func (l *Loop) Offset() (int8, error) {
	if l.screen == nil {
		return 0, ErrNoScreen
	}
	var offset int8
	err := l.do(func() {
		offset = l.screen.Offset()
	})
	return offset, err
}

// SetInterval changes the polling interval of a running loop.
func (l *Loop) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("invalid polling interval %s", d)
	}
	return l.do(func() {
		l.interval = d
	})
}

func (l *Loop) shiftOffset(delta int) (int8, error) {
	return l.setOffset(func(cur int) int { return cur + delta })
}

func (l *Loop) setOffset(target func(cur int) int) (int8, error) {
	if l.screen == nil {
		return 0, ErrNoScreen
	}

	var offset int8
	err := l.do(func() {
		cur := int(l.screen.Offset())
		next := min(max(target(cur), MinOffset), MaxOffset)

		for diff := next - cur; diff != 0; {
			step := min(max(diff, MinOffset), MaxOffset)
			if step > 0 {
				l.screen.Increase(int8(step))
			} else {
				l.screen.Decrease(int8(-step))
			}
			diff -= step
		}

		offset = l.screen.Offset()
		if next != cur {
			log.Info().Int8("offset", offset).Msg("Screen offset changed")
			if l.haveValue {
				l.adjust(l.screen, l.lastValue)
			}
		}
	})
	return offset, err
}

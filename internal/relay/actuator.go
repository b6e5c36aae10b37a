package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

// State tracks one channel's hardware lifecycle.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

const (
	minChannel = 1
	maxChannel = 4
)

type channelState struct {
	mu    sync.Mutex
	state State
	port  Port
}

// Actuator drives the dry-contact relay channels. Each channel owns a
// small state machine (Closed → Opening → Open → Faulted → Opening) and
// its own mutex: pulses on the same channel are serialized, pulses on
// different channels proceed concurrently. An I/O failure faults only
// the affected channel; the next pulse on it retries hardware
// acquisition.
type Actuator struct {
	opener   Opener
	momentar time.Duration
	channels [maxChannel + 1]*channelState
	log      *zap.Logger
}

// NewActuator creates an actuator. momentary is how long the contact is
// held closed per pulse.
func NewActuator(opener Opener, momentary time.Duration, log *zap.Logger) *Actuator {
	a := &Actuator{opener: opener, momentar: momentary, log: log}
	for ch := minChannel; ch <= maxChannel; ch++ {
		a.channels[ch] = &channelState{state: StateClosed}
	}
	return a
}

// Pulse closes the contact on the given channel for the momentary
// duration and releases it. The release write is attempted even when
// the assert write failed, so this code path can never leave a contact
// stuck closed (fail-safe-open). A pulse already holding the contact
// runs to completion regardless of ctx; ctx only gates starting.
func (a *Actuator) Pulse(ctx context.Context, channel int) error {
	if channel < minChannel || channel > maxChannel {
		return &domain.RelayIOError{Channel: channel, Err: fmt.Errorf("channel out of range %d..%d", minChannel, maxChannel)}
	}
	if err := ctx.Err(); err != nil {
		return &domain.RelayIOError{Channel: channel, Err: err}
	}

	c := a.channels[channel]
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := a.ensureOpen(c, channel); err != nil {
		return err
	}

	assertErr := c.port.Write(AssertFrame(channel))
	if assertErr == nil {
		// Contact is closed now; hold it for the full duration even if
		// the process is shutting down.
		time.Sleep(a.momentar)
	}

	releaseErr := c.port.Write(ReleaseFrame(channel))

	if assertErr != nil || releaseErr != nil {
		a.fault(c, channel)
		err := assertErr
		if err == nil {
			err = releaseErr
		}
		return &domain.RelayIOError{Channel: channel, Err: err}
	}

	a.log.Info("Relay pulse fired",
		zap.Int("channel", channel),
		zap.Duration("held", a.momentar))
	return nil
}

// ensureOpen acquires the hardware handle if the channel is not already
// open. Called with the channel mutex held.
func (a *Actuator) ensureOpen(c *channelState, channel int) error {
	if c.state == StateOpen && c.port != nil {
		return nil
	}

	c.state = StateOpening
	a.log.Info("Acquiring relay channel", zap.Int("channel", channel))

	port, err := a.opener(channel)
	if err != nil {
		c.state = StateFaulted
		c.port = nil
		a.log.Error("Relay channel acquisition failed",
			zap.Int("channel", channel),
			zap.Error(err))
		return &domain.RelayIOError{Channel: channel, Err: err}
	}

	c.state = StateOpen
	c.port = port
	return nil
}

// fault drops the channel handle so the next pulse re-acquires it.
// Called with the channel mutex held.
func (a *Actuator) fault(c *channelState, channel int) {
	if c.port != nil {
		if err := c.port.Close(); err != nil {
			a.log.Warn("Failed to close faulted relay port",
				zap.Int("channel", channel),
				zap.Error(err))
		}
	}
	c.port = nil
	c.state = StateFaulted
	a.log.Error("Relay channel faulted", zap.Int("channel", channel))
}

// ChannelState reports the channel's current lifecycle state.
func (a *Actuator) ChannelState(channel int) State {
	if channel < minChannel || channel > maxChannel {
		return StateClosed
	}
	c := a.channels[channel]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases every acquired handle. Waits for in-flight pulses by
// taking each channel mutex.
func (a *Actuator) Close() error {
	for ch := minChannel; ch <= maxChannel; ch++ {
		c := a.channels[ch]
		c.mu.Lock()
		if c.port != nil {
			if err := c.port.Close(); err != nil {
				a.log.Warn("Failed to close relay port",
					zap.Int("channel", ch),
					zap.Error(err))
			}
			c.port = nil
		}
		c.state = StateClosed
		c.mu.Unlock()
	}
	return nil
}

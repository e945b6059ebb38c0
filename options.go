package telegraph

import (
	"log/slog"
	"time"

	"github.com/KarpelesLab/emitter"
)

// sessionConfig collects what SessionOption values set.
type sessionConfig struct {
	log                   *slog.Logger
	clock                 Clock
	disconnectTimeout     time.Duration
	disconnectNotifyStart time.Duration
	journal               *Journal
	hub                   *emitter.Hub
	sessionID             string
	checkDistance         int
}

func defaultSessionConfig() *sessionConfig {
	return &sessionConfig{
		log:                   slog.Default(),
		clock:                 SystemClock,
		disconnectTimeout:     DefaultDisconnectTimeout,
		disconnectNotifyStart: DefaultDisconnectNotifyStart,
		checkDistance:         DefaultCheckDistance,
	}
}

// SessionOption configures a backend at creation.
type SessionOption interface {
	apply(*sessionConfig)
}

type optionFunc func(*sessionConfig)

func (f optionFunc) apply(c *sessionConfig) { f(c) }

// WithLogger sets the logger used by the session and all its components.
func WithLogger(l *slog.Logger) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.log = l
	})
}

// WithClock replaces the clock driving endpoint timers.
func WithClock(clk Clock) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.clock = clk
	})
}

// WithDisconnectTimeout sets how long a remote player may stay silent
// before being disconnected. Zero disables the timeout.
func WithDisconnectTimeout(d time.Duration) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.disconnectTimeout = d
	})
}

// WithDisconnectNotifyStart sets how long a remote player may stay silent
// before EventConnectionInterrupted is sent.
func WithDisconnectNotifyStart(d time.Duration) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.disconnectNotifyStart = d
	})
}

// WithJournal records every confirmed frame into j.
func WithJournal(j *Journal) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.journal = j
	})
}

// WithEventHub mirrors every session event on h, using the event name
// prefixed with "telegraph:" as trigger. Listeners must keep up since the
// session waits for them.
func WithEventHub(h *emitter.Hub) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.hub = h
	})
}

// WithSessionID sets the id used in logs and journal records. A random one
// is generated by default.
func WithSessionID(id string) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.sessionID = id
	})
}

// CheckDistance is the number of frames the sync test backend rolls back on
// every check. It must be between 1 and MaxPredictionFrames.
type CheckDistance int

func (d CheckDistance) apply(c *sessionConfig) {
	c.checkDistance = int(d)
}

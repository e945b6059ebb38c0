package telegraph

import (
	"fmt"
	"time"
)

// Event is a session lifecycle notification delivered to Callbacks.OnEvent.
// The concrete type is one of the Event* structs of this package.
type Event interface {
	Name() string
	isEvent()
}

// EventConnected is sent once a remote player answered its first sync
// request.
type EventConnected struct{ Player PlayerHandle }

type EventDisconnected struct{ Player PlayerHandle }

// EventSynchronizing reports handshake progress with a remote player.
type EventSynchronizing struct {
	Player       PlayerHandle
	Count, Total int
}

type EventSynchronized struct{ Player PlayerHandle }

// EventRunning is sent once every remote player is either synchronized or
// disconnected. Input is accepted from then on.
type EventRunning struct{}

// EventConnectionInterrupted is sent when nothing was received from a player
// for a while. The player will be disconnected if nothing arrives within
// DisconnectTimeout.
type EventConnectionInterrupted struct {
	Player            PlayerHandle
	DisconnectTimeout time.Duration
}

type EventConnectionResumed struct{ Player PlayerHandle }

// EventTimeSync recommends the application to stall for FramesAhead frames
// so the remote side can catch up.
type EventTimeSync struct{ FramesAhead int }

func (EventConnected) Name() string             { return "connected" }
func (EventDisconnected) Name() string          { return "disconnected" }
func (EventSynchronizing) Name() string         { return "synchronizing" }
func (EventSynchronized) Name() string          { return "synchronized" }
func (EventRunning) Name() string               { return "running" }
func (EventConnectionInterrupted) Name() string { return "connectionInterrupted" }
func (EventConnectionResumed) Name() string     { return "connectionResumed" }
func (EventTimeSync) Name() string              { return "timesync" }

func (EventConnected) isEvent()             {}
func (EventDisconnected) isEvent()          {}
func (EventSynchronizing) isEvent()         {}
func (EventSynchronized) isEvent()          {}
func (EventRunning) isEvent()               {}
func (EventConnectionInterrupted) isEvent() {}
func (EventConnectionResumed) isEvent()     {}
func (EventTimeSync) isEvent()              {}

// endpointEventKind enumerates what an endpoint reports to its backend.
type endpointEventKind int

const (
	evConnected endpointEventKind = iota
	evSynchronizing
	evSynchronized
	evInput
	evDisconnected
	evInterrupted
	evResumed
)

func (k endpointEventKind) String() string {
	switch k {
	case evConnected:
		return "connected"
	case evSynchronizing:
		return "synchronizing"
	case evSynchronized:
		return "synchronized"
	case evInput:
		return "input"
	case evDisconnected:
		return "disconnected"
	case evInterrupted:
		return "interrupted"
	case evResumed:
		return "resumed"
	default:
		return fmt.Sprintf("endpointEventKind(%d)", int(k))
	}
}

type endpointEvent struct {
	kind endpointEventKind

	input             GameInput     // evInput
	count, total      int           // evSynchronizing
	disconnectTimeout time.Duration // evInterrupted
}

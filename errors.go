// Package telegraph provides a peer-to-peer rollback netcode engine.
package telegraph

import "errors"

// Error constants used throughout the telegraph library.
// Recoverable conditions are returned as one of these values and should be
// tested with errors.Is. A nil error means the operation succeeded.
var (
	// ErrPlayerOutOfRange is returned by AddPlayer when the player number is
	// not within 1..NumPlayers.
	ErrPlayerOutOfRange = errors.New("player number out of range")

	// ErrInRollback is returned when local input is submitted while the
	// synchronizer is replaying frames.
	ErrInRollback = errors.New("session is in rollback")

	// ErrNotSynchronized is returned while at least one remote endpoint is
	// still performing its synchronization handshake.
	ErrNotSynchronized = errors.New("session is not synchronized")

	// ErrInvalidPlayerHandle is returned when a player handle does not map to
	// a player queue.
	ErrInvalidPlayerHandle = errors.New("invalid player handle")

	// ErrPredictionThreshold is returned when local input is rejected because
	// the session is too far ahead of confirmed remote input. The caller
	// should not advance its simulation this tick.
	ErrPredictionThreshold = errors.New("prediction threshold reached")

	// ErrPlayerAlreadyDisconnected is returned when disconnecting a player
	// that has already been disconnected.
	ErrPlayerAlreadyDisconnected = errors.New("player already disconnected")

	// ErrNotSupported is returned by backends for operations they do not
	// implement.
	ErrNotSupported = errors.New("operation not supported by this backend")

	// ErrDesync is returned by the sync test backend when a replayed frame
	// produced a different checksum than the original run.
	ErrDesync = errors.New("simulation desync detected")

	// ErrContractViolation is the error carried by panics raised when an
	// internal invariant is broken. It is never returned.
	ErrContractViolation = errors.New("contract violation")

	// ErrInvalidCapacity is returned when creating a ring buffer with a
	// capacity that is not a positive integer.
	ErrInvalidCapacity = errors.New("capacity must be positive")

	// ErrRingFull is returned when pushing into a full ring buffer.
	ErrRingFull = errors.New("ring buffer is full")

	// ErrRingEmpty is returned when reading from an empty ring buffer.
	ErrRingEmpty = errors.New("ring buffer is empty")

	// ErrRingIndex is returned when peeking past the number of stored elements.
	ErrRingIndex = errors.New("ring buffer index out of range")

	// ErrUnknownMessage is returned when decoding a wire frame with an unknown
	// message code.
	ErrUnknownMessage = errors.New("unknown message code")

	// ErrUnknownPeer is returned by transports when sending to a peer that has
	// no open connection.
	ErrUnknownPeer = errors.New("no connection to peer")

	// ErrConnectionClosed is returned when attempting to use a connection that
	// has already been closed, either locally or by the remote peer.
	ErrConnectionClosed = errors.New("connection has been closed")
)

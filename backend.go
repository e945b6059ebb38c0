package telegraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Backend is the player facing API of a session. The application calls it
// once per simulation tick, in this order: AddLocalInput for every local
// player, SyncInput, advance the simulation, IncrementFrame, then
// PostProcessUpdate.
//
// A Backend is not safe for concurrent use.
type Backend interface {
	AddPlayer(p Player) (PlayerHandle, error)
	AddLocalInput(h PlayerHandle, values InputValues) error
	SyncInput() (SyncedInputs, error)
	IncrementFrame() error
	PostProcessUpdate()
	DisconnectPlayer(h PlayerHandle) error
	NetworkStats(h PlayerHandle) (NetworkStats, error)
	SetFrameDelay(h PlayerHandle, delay int) error
	Close() error
}

var (
	_ Backend = (*P2PBackend)(nil)
	_ Backend = (*SyncTestBackend)(nil)
)

// session holds the state shared by every backend implementation.
type session struct {
	cfg        *sessionConfig
	log        *slog.Logger
	id         string
	callbacks  *Callbacks
	numPlayers int
	status     *StatusTable
	sync       *Synchronizer
}

func newSession(numPlayers int, cb Callbacks, opts []SessionOption) *session {
	assertf(numPlayers > 0, "session: invalid number of players %d", numPlayers)
	assertf(cb.SaveState != nil && cb.LoadState != nil && cb.AdvanceFrame != nil, "session: simulation callbacks are required")

	cfg := defaultSessionConfig()
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}
	if cfg.log == nil {
		cfg.log = slog.Default()
	}

	s := &session{
		cfg:        cfg,
		log:        cfg.log.With("telegraph.session", cfg.sessionID),
		id:         cfg.sessionID,
		callbacks:  &cb,
		numPlayers: numPlayers,
		status:     NewStatusTable(numPlayers),
	}
	s.sync = NewSynchronizer(s.callbacks, s.status, s.log)
	return s
}

// ID returns the session id.
func (s *session) ID() string {
	return s.id
}

// FrameCount returns the current frame.
func (s *session) FrameCount() int {
	return s.sync.FrameCount()
}

func (s *session) handleToQueue(h PlayerHandle) (int, error) {
	queue := int(h) - 1
	if queue < 0 || queue >= s.numPlayers {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPlayerHandle, h)
	}
	return queue, nil
}

func (s *session) SetFrameDelay(h PlayerHandle, delay int) error {
	queue, err := s.handleToQueue(h)
	if err != nil {
		return err
	}
	s.sync.SetFrameDelay(queue, delay)
	return nil
}

func (s *session) emit(ev Event) {
	s.log.Debug(fmt.Sprintf("[telegraph] event %s: %+v", ev.Name(), ev), "event", "telegraph:session:"+ev.Name())
	s.callbacks.emit(ev)

	if s.cfg.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		s.cfg.hub.Emit(ctx, "telegraph:"+ev.Name(), ev)
	}
}

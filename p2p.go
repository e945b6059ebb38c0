package telegraph

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// P2PBackend is a session where every remote player is reached directly
// through a Transport.
type P2PBackend struct {
	*session

	transport     Transport
	endpoints     []*Endpoint // nil for non remote players
	synchronizing bool

	nextRecommendedSleep int
	lastJournaledFrame   int
}

// NewP2PBackend creates a session for numPlayers players. Players must then
// be registered with AddPlayer.
func NewP2PBackend(numPlayers int, cb Callbacks, transport Transport, opts ...SessionOption) *P2PBackend {
	b := &P2PBackend{
		session:            newSession(numPlayers, cb, opts),
		transport:          transport,
		endpoints:          make([]*Endpoint, numPlayers),
		synchronizing:      true,
		lastJournaledFrame: NullFrame,
	}
	return b
}

// AddPlayer registers a player. For remote players the handshake starts
// immediately.
func (b *P2PBackend) AddPlayer(p Player) (PlayerHandle, error) {
	if p.Number < 1 || p.Number > b.numPlayers {
		return 0, fmt.Errorf("%w: %d not in 1..%d", ErrPlayerOutOfRange, p.Number, b.numPlayers)
	}
	queue := p.Number - 1

	switch p.Type {
	case PlayerRemote:
		b.addRemotePlayer(p.PeerID, queue)
	case PlayerSpectator:
		return 0, fmt.Errorf("%w: spectators", ErrNotSupported)
	}
	return queueToHandle(queue), nil
}

func (b *P2PBackend) addRemotePlayer(peerID string, queue int) {
	assertf(b.endpoints[queue] == nil, "p2p: player %d already added", queue+1)

	b.synchronizing = true
	b.endpoints[queue] = newEndpoint(endpointConfig{
		log:                   b.log,
		clock:                 b.cfg.clock,
		transport:             b.transport,
		peerID:                peerID,
		queue:                 queue,
		status:                b.status,
		disconnectTimeout:     b.cfg.disconnectTimeout,
		disconnectNotifyStart: b.cfg.disconnectNotifyStart,
	})
	b.status.Reset(queue)
	b.endpoints[queue].Synchronize()
}

func (b *P2PBackend) forEachEndpoint(cb func(ep *Endpoint, queue int)) {
	for queue, ep := range b.endpoints {
		if ep != nil {
			cb(ep, queue)
		}
	}
}

// AddLocalInput submits the input of a local player for the current frame
// and sends it to every remote player.
func (b *P2PBackend) AddLocalInput(h PlayerHandle, values InputValues) error {
	if b.sync.InRollback() {
		return ErrInRollback
	}
	if b.synchronizing {
		b.checkInitialSync()
		if b.synchronizing {
			return ErrNotSynchronized
		}
	}

	queue, err := b.handleToQueue(h)
	if err != nil {
		return err
	}

	input, ok := b.sync.AddLocalInput(queue, values)
	if !ok {
		return ErrPredictionThreshold
	}

	// NullFrame means the input was dropped because the frame delay shrank
	if input.Frame != NullFrame {
		b.status.SetLastFrame(queue, input.Frame)
		b.forEachEndpoint(func(ep *Endpoint, _ int) {
			ep.SendInput(input)
		})
	}
	return nil
}

// SyncInput returns the inputs to simulate the current frame with.
func (b *P2PBackend) SyncInput() (SyncedInputs, error) {
	if b.synchronizing {
		return SyncedInputs{}, ErrNotSynchronized
	}
	return b.sync.SynchronizedInputs(), nil
}

func (b *P2PBackend) IncrementFrame() error {
	b.sync.IncrementFrame()
	return nil
}

// HandleMessage passes a message received from peer to its endpoint, then
// runs PostProcessUpdate.
func (b *P2PBackend) HandleMessage(from string, msg Message) {
	var target *Endpoint
	for _, ep := range b.endpoints {
		if ep != nil && ep.PeerID() == from {
			target = ep
			break
		}
	}
	if target == nil {
		b.log.Warn(fmt.Sprintf("[telegraph] dropping message from unknown peer %s", from), "event", "telegraph:session:unknown_peer")
		return
	}

	target.HandleMessage(msg)
	b.PostProcessUpdate()
}

// PostProcessUpdate runs the per tick maintenance: endpoint timers, event
// processing, misprediction checks and input discarding. It must be called
// once per tick and does nothing while a rollback is being replayed.
func (b *P2PBackend) PostProcessUpdate() {
	if b.sync.InRollback() {
		return
	}

	b.forEachEndpoint(func(ep *Endpoint, _ int) {
		ep.Tick()
	})
	b.processEndpointEvents()

	if b.synchronizing {
		b.checkInitialSync()
		if b.synchronizing {
			return
		}
	}

	b.sync.CheckSimulation()

	currentFrame := b.sync.FrameCount()
	b.forEachEndpoint(func(ep *Endpoint, _ int) {
		ep.SetLocalFrameNumber(currentFrame)
	})

	var totalMinConfirmed int
	if b.numPlayers <= 2 {
		totalMinConfirmed = b.poll2Players()
	} else {
		totalMinConfirmed = b.pollNPlayers()
	}

	if totalMinConfirmed >= 0 {
		assertf(totalMinConfirmed != math.MaxInt, "p2p: could not find last confirmed frame")
		b.journalConfirmed(totalMinConfirmed)
		b.sync.SetLastConfirmedFrame(totalMinConfirmed)
	}

	if currentFrame > b.nextRecommendedSleep {
		interval := 0
		b.forEachEndpoint(func(ep *Endpoint, _ int) {
			interval = max(interval, ep.RecommendFrameDelay())
		})
		if interval > 0 {
			b.emit(EventTimeSync{FramesAhead: interval})
			b.nextRecommendedSleep = currentFrame + RecommendationInterval
		}
	}
}

// poll2Players returns the lowest last frame among connected players. Only
// one remote endpoint can exist.
func (b *P2PBackend) poll2Players() int {
	totalMinConfirmed := math.MaxInt
	for queue := 0; queue < b.numPlayers; queue++ {
		queueConnected := true
		if ep := b.endpoints[queue]; ep != nil && ep.IsRunning() {
			queueConnected = !ep.PeerConnectStatus(queue).Disconnected
		}

		st := b.status.Get(queue)
		if !st.Disconnected {
			totalMinConfirmed = min(totalMinConfirmed, st.LastFrame)
		}
		if !queueConnected && !st.Disconnected {
			b.log.Info(fmt.Sprintf("[telegraph] player %d reported disconnected by its peer", queue+1), "event", "telegraph:session:remote_disconnect")
			b.disconnectPlayerQueue(queue, totalMinConfirmed)
		}
	}
	return totalMinConfirmed
}

// pollNPlayers would aggregate the confirmed frame across more than two
// players, using what every endpoint reports about every other player.
func (b *P2PBackend) pollNPlayers() int {
	panic(fmt.Errorf("%w: polling more than two players is not yet implemented", ErrContractViolation))
}

func (b *P2PBackend) processEndpointEvents() {
	b.forEachEndpoint(func(ep *Endpoint, queue int) {
		handle := queueToHandle(queue)
		ep.DrainEvents(func(ev endpointEvent) {
			switch ev.kind {
			case evInput:
				b.handleRemoteInput(queue, ev.input)
			case evDisconnected:
				if err := b.DisconnectPlayer(handle); err != nil && !errors.Is(err, ErrPlayerAlreadyDisconnected) {
					b.log.Warn(fmt.Sprintf("[telegraph] failed to disconnect player %d: %s", handle, err), "event", "telegraph:session:disconnect_fail")
				}
			case evConnected:
				b.emit(EventConnected{Player: handle})
			case evSynchronizing:
				b.emit(EventSynchronizing{Player: handle, Count: ev.count, Total: ev.total})
			case evSynchronized:
				b.emit(EventSynchronized{Player: handle})
				b.checkInitialSync()
			case evInterrupted:
				b.emit(EventConnectionInterrupted{Player: handle, DisconnectTimeout: ev.disconnectTimeout})
			case evResumed:
				b.emit(EventConnectionResumed{Player: handle})
			default:
				assertf(false, "p2p: unhandled endpoint event %s", ev.kind)
			}
		})
	})
}

func (b *P2PBackend) handleRemoteInput(queue int, input GameInput) {
	st := b.status.Get(queue)
	if st.Disconnected {
		return
	}
	assertf(st.LastFrame == NullFrame || input.Frame == st.LastFrame+1,
		"p2p: out of order remote frame for player %d (wanted %d, got %d)", queue+1, st.LastFrame+1, input.Frame)

	b.sync.AddRemoteInput(queue, input)
	b.status.SetLastFrame(queue, input.Frame)
}

// DisconnectPlayer disconnects a remote player. Called with a local player,
// it disconnects every remote player instead, ending the session for this
// peer.
func (b *P2PBackend) DisconnectPlayer(h PlayerHandle) error {
	queue, err := b.handleToQueue(h)
	if err != nil {
		return err
	}
	if b.status.Get(queue).Disconnected {
		return ErrPlayerAlreadyDisconnected
	}

	if b.endpoints[queue] == nil {
		currentFrame := b.sync.FrameCount()
		b.forEachEndpoint(func(_ *Endpoint, i int) {
			if !b.status.Get(i).Disconnected {
				b.disconnectPlayerQueue(i, currentFrame)
			}
		})
		return nil
	}

	b.disconnectPlayerQueue(queue, b.status.Get(queue).LastFrame)
	return nil
}

func (b *P2PBackend) disconnectPlayerQueue(queue, syncTo int) {
	ep := b.endpoints[queue]
	assertf(ep != nil, "p2p: no endpoint for player queue %d", queue)

	frameCount := b.sync.FrameCount()
	ep.Disconnect()
	b.status.MarkDisconnected(queue, syncTo)

	b.log.Info(fmt.Sprintf("[telegraph] player %d disconnected at frame %d (current frame %d)", queue+1, syncTo, frameCount), "event", "telegraph:session:disconnect")

	if syncTo != NullFrame && syncTo < frameCount {
		// a pending misprediction before syncTo must be replayed as well
		seekTo := syncTo
		if f := b.sync.firstIncorrectFrame(); f != NullFrame && f < seekTo {
			seekTo = f
		}
		b.sync.AdjustSimulation(seekTo)
	}

	b.emit(EventDisconnected{Player: queueToHandle(queue)})

	// a player dropping during the handshake must not block the session
	b.checkInitialSync()
}

func (b *P2PBackend) checkInitialSync() {
	if !b.synchronizing {
		return
	}
	for queue, ep := range b.endpoints {
		if ep != nil && !ep.IsSynchronized() && !b.status.Get(queue).Disconnected {
			return
		}
	}

	b.log.Info("[telegraph] all peers synchronized", "event", "telegraph:session:running")
	b.synchronizing = false
	b.emit(EventRunning{})
}

// NetworkStats returns the connection statistics of a player.
func (b *P2PBackend) NetworkStats(h PlayerHandle) (NetworkStats, error) {
	queue, err := b.handleToQueue(h)
	if err != nil {
		return NetworkStats{}, err
	}
	if ep := b.endpoints[queue]; ep != nil {
		return ep.NetworkStats(), nil
	}
	return localPlayerStats, nil
}

// journalConfirmed records every frame up to frame into the journal, if
// one is attached.
func (b *P2PBackend) journalConfirmed(frame int) {
	j := b.cfg.journal
	if j == nil {
		return
	}

	var recs []JournalRecord
	for f := b.lastJournaledFrame + 1; f <= frame; f++ {
		inputs, disconnected, ok := b.sync.ConfirmedInputs(f)
		if !ok {
			break
		}
		checksum, _ := b.sync.SavedChecksum(f)
		recs = append(recs, JournalRecord{
			Session:      b.id,
			Frame:        f,
			Inputs:       inputs,
			Disconnected: disconnected,
			Checksum:     checksum,
		})
	}
	if len(recs) == 0 {
		return
	}

	if err := j.Record(recs...); err != nil {
		b.log.Warn(fmt.Sprintf("[telegraph] failed to journal frames %d-%d: %s", recs[0].Frame, recs[len(recs)-1].Frame, err), "event", "telegraph:session:journal_fail")
		return
	}
	b.lastJournaledFrame = recs[len(recs)-1].Frame
}

// Close disconnects every remote player, telling them about it, and
// releases the transport and journal.
func (b *P2PBackend) Close() error {
	var errs []error
	b.forEachEndpoint(func(ep *Endpoint, queue int) {
		if !b.status.Get(queue).Disconnected {
			b.status.MarkDisconnected(queue, b.status.Get(queue).LastFrame)
		}
		if ep.state != stateDisconnected {
			ep.Disconnect()
			ep.sendPendingOutput()
		}
		if ep.transport != nil {
			if err := ep.transport.ClosePeer(ep.PeerID()); err != nil {
				errs = append(errs, err)
			}
			ep.transport = nil
		}
	})
	if b.cfg.journal != nil {
		if err := b.cfg.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DumpInfo writes a human readable status of the session to w.
func (b *P2PBackend) DumpInfo(w io.Writer) {
	fmt.Fprintf(w, "Session %s\n", b.id)
	fmt.Fprintf(w, "Frame: %d (last confirmed %d)\n", b.sync.FrameCount(), b.sync.LastConfirmedFrame())
	fmt.Fprintf(w, "Synchronizing: %t\n", b.synchronizing)
	fmt.Fprintf(w, "\n")

	for queue := 0; queue < b.numPlayers; queue++ {
		st := b.status.Get(queue)
		ep := b.endpoints[queue]
		if ep == nil {
			fmt.Fprintf(w, "Player %d: local last_frame=%d disconnected=%t\n", queue+1, st.LastFrame, st.Disconnected)
			continue
		}
		stats := ep.NetworkStats()
		fmt.Fprintf(w, "Player %d: remote %s state=%s last_frame=%d disconnected=%t ping=%s queue=%d advantage=%d/%d out_of_order=%d\n",
			queue+1, ep.PeerID(), ep.state, st.LastFrame, st.Disconnected, stats.Ping, stats.SendQueueLength,
			stats.LocalFrameAdvantage, stats.RemoteFrameAdvantage, stats.OutOfOrder)
	}
}

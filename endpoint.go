package telegraph

import (
	"fmt"
	"log/slog"
	"time"
)

type endpointState int

const (
	stateSynchronizing endpointState = iota
	stateRunning
	stateDisconnected
)

func (s endpointState) String() string {
	switch s {
	case stateSynchronizing:
		return "synchronizing"
	case stateRunning:
		return "running"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// endpointConfig holds what an Endpoint needs from its backend.
type endpointConfig struct {
	log                   *slog.Logger
	clock                 Clock
	transport             Transport
	peerID                string
	queue                 int
	status                StatusReader
	disconnectTimeout     time.Duration
	disconnectNotifyStart time.Duration
}

// Endpoint runs the protocol with a single remote player: handshake, input
// exchange, keepalive, round trip measurement and disconnect detection.
//
// It never calls into its backend. Everything the backend has to act on is
// queued as an event and collected with DrainEvents.
type Endpoint struct {
	log       *slog.Logger
	clock     Clock
	transport Transport // nil once shut down
	peerID    string
	queue     int
	status    StatusReader

	disconnectTimeout     time.Duration
	disconnectNotifyStart time.Duration

	// what the peer reported about every player
	peerConnectStatus []ConnectionStatus

	state endpointState

	syncRandom              uint32
	syncRoundtripsRemaining int

	roundTripTime  time.Duration
	lastSendTime   time.Time
	lastRecvTime   time.Time
	lastRecvInput  GameInput
	lastAckedInput GameInput

	lastQualityReportTime   time.Time
	lastInputPacketRecvTime time.Time

	connectedEventSent   bool
	disconnectEventSent  bool
	disconnectNotifySent bool
	shutdownTime         time.Time

	nextSendSeq uint32
	lastRecvSeq uint32
	recvAny     bool
	outOfOrder  uint64

	localFrameAdvantage  int
	remoteFrameAdvantage int
	timesync             TimeSync

	events        *RingBuffer[endpointEvent]
	pendingOutput *RingBuffer[GameInput]
}

func newEndpoint(cfg endpointConfig) *Endpoint {
	if cfg.clock == nil {
		cfg.clock = SystemClock
	}
	return &Endpoint{
		log:                   cfg.log.With("telegraph.peer", cfg.peerID),
		clock:                 cfg.clock,
		transport:             cfg.transport,
		peerID:                cfg.peerID,
		queue:                 cfg.queue,
		status:                cfg.status,
		disconnectTimeout:     cfg.disconnectTimeout,
		disconnectNotifyStart: cfg.disconnectNotifyStart,
		lastRecvInput:         GameInput{Frame: NullFrame},
		lastAckedInput:        GameInput{Frame: NullFrame},
		events:                mustRingBuffer[endpointEvent](eventQueueSize),
		pendingOutput:         mustRingBuffer[GameInput](pendingOutputSize),
	}
}

func (e *Endpoint) PeerID() string { return e.peerID }

// IsSynchronized reports whether the handshake completed.
func (e *Endpoint) IsSynchronized() bool { return e.state == stateRunning }

func (e *Endpoint) IsRunning() bool { return e.state == stateRunning }

// PeerConnectStatus returns what the peer last reported about player queue.
func (e *Endpoint) PeerConnectStatus(queue int) ConnectionStatus {
	if queue < len(e.peerConnectStatus) {
		return e.peerConnectStatus[queue]
	}
	return ConnectionStatus{LastFrame: NullFrame}
}

func (e *Endpoint) peerStatusRef(queue int) *ConnectionStatus {
	for len(e.peerConnectStatus) <= queue {
		e.peerConnectStatus = append(e.peerConnectStatus, ConnectionStatus{LastFrame: NullFrame})
	}
	return &e.peerConnectStatus[queue]
}

// Synchronize starts the handshake.
func (e *Endpoint) Synchronize() {
	e.state = stateSynchronizing
	e.syncRoundtripsRemaining = NumSyncPackets
	e.sendSyncRequest()
}

// Disconnect stops the endpoint. The transport is released after
// ShutdownTimer.
func (e *Endpoint) Disconnect() {
	e.state = stateDisconnected
	e.shutdownTime = e.clock.Now().Add(ShutdownTimer)
}

// SendInput queues a local input and sends every input the peer has not
// acknowledged yet.
func (e *Endpoint) SendInput(input GameInput) {
	if e.transport == nil {
		return
	}
	if e.state == stateRunning {
		e.timesync.AdvanceFrame(input, e.localFrameAdvantage, e.remoteFrameAdvantage)
		must(e.pendingOutput.Push(input.clone()), "endpoint pending output")
	}
	e.sendPendingOutput()
}

func (e *Endpoint) sendPendingOutput() {
	msg := &Input{
		AckFrame:            e.lastRecvInput.Frame,
		DisconnectRequested: e.state == stateDisconnected,
		PeerConnectStatus:   e.status.Snapshot(),
	}

	if n := e.pendingOutput.Size(); n > 0 {
		front, _ := e.pendingOutput.Front()
		msg.StartFrame = front.Frame
		assertf(e.lastAckedInput.Frame == NullFrame || e.lastAckedInput.Frame+1 == msg.StartFrame,
			"endpoint %s: next frame to send %d does not follow last acked frame %d", e.peerID, msg.StartFrame, e.lastAckedInput.Frame)

		msg.Inputs = make([]InputValues, 0, n)
		for i := 0; i < n; i++ {
			in, _ := e.pendingOutput.Item(i)
			msg.Inputs = append(msg.Inputs, in.Inputs)
		}
	}

	e.sendMessage(msg)
}

// SendInputAck acknowledges every input received so far.
func (e *Endpoint) SendInputAck() {
	e.sendMessage(&InputAck{AckFrame: e.lastRecvInput.Frame})
}

// DrainEvents passes every queued event to cb, oldest first.
func (e *Endpoint) DrainEvents(cb func(endpointEvent)) {
	for !e.events.IsEmpty() {
		ev, _ := e.events.Pop()
		cb(ev)
	}
}

// Tick runs the endpoint timers. It is called by the backend on every
// maintenance pass.
func (e *Endpoint) Tick() {
	if e.transport == nil {
		return
	}
	now := e.clock.Now()

	switch e.state {
	case stateSynchronizing:
		interval := SyncRetryInterval
		if e.syncRoundtripsRemaining == NumSyncPackets {
			interval = SyncFirstRetryInterval
		}
		if !e.lastSendTime.IsZero() && now.After(e.lastSendTime.Add(interval)) {
			e.log.Debug(fmt.Sprintf("[telegraph] no sync reply from %s within %s, retrying", e.peerID, interval), "event", "telegraph:peer:sync_retry")
			e.sendSyncRequest()
		}

	case stateDisconnected:
		if !e.shutdownTime.IsZero() && now.After(e.shutdownTime) {
			e.log.Info(fmt.Sprintf("[telegraph] releasing connection to %s", e.peerID), "event", "telegraph:peer:shutdown")
			if err := e.transport.ClosePeer(e.peerID); err != nil {
				e.log.Debug(fmt.Sprintf("[telegraph] failed to close connection to %s: %s", e.peerID, err), "event", "telegraph:peer:shutdown_fail")
			}
			e.shutdownTime = time.Time{}
			e.transport = nil
		}

	case stateRunning:
		if e.lastInputPacketRecvTime.Add(RunningRetryInterval).Before(now) {
			// nothing received lately, assume our inputs got lost and resend
			e.sendPendingOutput()
			e.lastInputPacketRecvTime = now
		}

		if e.lastQualityReportTime.Add(QualityReportInterval).Before(now) {
			e.sendMessage(&QualityReport{FrameAdvantage: e.localFrameAdvantage, Ping: now.UnixMilli()})
			e.lastQualityReportTime = now
		}

		if !e.lastSendTime.IsZero() && e.lastSendTime.Add(KeepAliveInterval).Before(now) {
			e.sendMessage(&KeepAlive{})
		}

		if e.disconnectTimeout > 0 && e.disconnectNotifyStart > 0 && !e.disconnectNotifySent && e.lastRecvTime.Add(e.disconnectNotifyStart).Before(now) {
			e.log.Info(fmt.Sprintf("[telegraph] nothing received from %s for %s", e.peerID, e.disconnectNotifyStart), "event", "telegraph:peer:interrupted")
			e.queueEvent(endpointEvent{kind: evInterrupted, disconnectTimeout: e.disconnectTimeout - e.disconnectNotifyStart})
			e.disconnectNotifySent = true
		}

		if e.disconnectTimeout > 0 && !e.disconnectEventSent && e.lastRecvTime.Add(e.disconnectTimeout).Before(now) {
			e.log.Info(fmt.Sprintf("[telegraph] nothing received from %s for %s, disconnecting", e.peerID, e.disconnectTimeout), "event", "telegraph:peer:timeout")
			e.queueEvent(endpointEvent{kind: evDisconnected})
			e.disconnectEventSent = true
		}
	}
}

// SetLocalFrameNumber updates the local frame advantage: how many frames
// behind the estimated remote frame the local simulation is.
func (e *Endpoint) SetLocalFrameNumber(localFrame int) {
	// last frame they sent plus the frames elapsed during one round trip at 60fps
	remoteFrame := e.lastRecvInput.Frame + int(e.roundTripTime.Milliseconds()*60/1000)
	e.localFrameAdvantage = remoteFrame - localFrame
}

// RecommendFrameDelay returns how many frames the local side should wait.
func (e *Endpoint) RecommendFrameDelay() int {
	return e.timesync.RecommendFrameWaitDuration(false)
}

func (e *Endpoint) NetworkStats() NetworkStats {
	return NetworkStats{
		Ping:                 e.roundTripTime,
		SendQueueLength:      e.pendingOutput.Size(),
		LocalFrameAdvantage:  e.localFrameAdvantage,
		RemoteFrameAdvantage: e.remoteFrameAdvantage,
		OutOfOrder:           e.outOfOrder,
	}
}

// HandleMessage processes a message received from the peer.
func (e *Endpoint) HandleMessage(msg Message) {
	if h, ok := msg.(*Hello); ok {
		// connection level, transports consume it before the session
		e.log.Warn(fmt.Sprintf("[telegraph] dropping stray hello from %s (claims %q)", e.peerID, h.PeerID), "event", "telegraph:peer:stray_hello")
		return
	}

	seq := msg.Sequence()
	if e.recvAny {
		if seq <= e.lastRecvSeq {
			e.log.Warn(fmt.Sprintf("[telegraph] dropping stale message %d from %s (last was %d)", seq, e.peerID, e.lastRecvSeq), "event", "telegraph:peer:stale_seq")
			return
		}
		if seq != e.lastRecvSeq+1 {
			e.outOfOrder += 1
			e.log.Warn(fmt.Sprintf("[telegraph] gap in messages from %s: expected %d got %d", e.peerID, e.lastRecvSeq+1, seq), "event", "telegraph:peer:seq_gap")
		}
	}
	e.recvAny = true
	e.lastRecvSeq = seq

	if e.state == stateSynchronizing {
		switch msg.(type) {
		case *SyncRequest, *SyncReply:
		default:
			return
		}
	}

	var handled bool
	switch m := msg.(type) {
	case *SyncRequest:
		handled = e.onSyncRequest(m)
	case *SyncReply:
		handled = e.onSyncReply(m)
	case *QualityReport:
		handled = e.onQualityReport(m)
	case *QualityReply:
		handled = e.onQualityReply(m)
	case *Input:
		handled = e.onInput(m)
	case *InputAck:
		handled = e.onInputAck(m)
	case *KeepAlive:
		handled = true
	default:
		assertf(false, "endpoint %s: no handler for message %T", e.peerID, msg)
	}

	if !handled {
		return
	}
	e.lastRecvTime = e.clock.Now()
	if e.disconnectNotifySent && e.state == stateRunning {
		e.queueEvent(endpointEvent{kind: evResumed})
		e.disconnectNotifySent = false
	}
}

func (e *Endpoint) onSyncRequest(m *SyncRequest) bool {
	e.sendMessage(&SyncReply{RandomReply: m.RandomRequest})
	return true
}

func (e *Endpoint) onSyncReply(m *SyncReply) bool {
	if e.state != stateSynchronizing {
		return true
	}
	if m.RandomReply != e.syncRandom {
		e.log.Debug(fmt.Sprintf("[telegraph] sync reply from %s with wrong nonce", e.peerID), "event", "telegraph:peer:sync_nonce")
		return false
	}

	if !e.connectedEventSent {
		e.queueEvent(endpointEvent{kind: evConnected})
		e.connectedEventSent = true
	}

	e.syncRoundtripsRemaining -= 1
	if e.syncRoundtripsRemaining == 0 {
		e.log.Info(fmt.Sprintf("[telegraph] synchronized with %s", e.peerID), "event", "telegraph:peer:synchronized")
		e.queueEvent(endpointEvent{kind: evSynchronized})
		e.state = stateRunning
		e.lastRecvInput = GameInput{Frame: NullFrame}
		return true
	}

	e.queueEvent(endpointEvent{
		kind:  evSynchronizing,
		count: NumSyncPackets - e.syncRoundtripsRemaining,
		total: NumSyncPackets,
	})
	e.sendSyncRequest()
	return true
}

func (e *Endpoint) onQualityReport(m *QualityReport) bool {
	e.sendMessage(&QualityReply{Pong: m.Ping})
	e.remoteFrameAdvantage = m.FrameAdvantage
	return true
}

func (e *Endpoint) onQualityReply(m *QualityReply) bool {
	e.roundTripTime = time.Duration(e.clock.Now().UnixMilli()-m.Pong) * time.Millisecond
	return true
}

func (e *Endpoint) onInput(m *Input) bool {
	if m.DisconnectRequested {
		if e.state != stateDisconnected && !e.disconnectEventSent {
			e.log.Info(fmt.Sprintf("[telegraph] peer %s requested disconnect", e.peerID), "event", "telegraph:peer:disconnect_req")
			e.queueEvent(endpointEvent{kind: evDisconnected})
			e.disconnectEventSent = true
		}
	} else {
		for i, remote := range m.PeerConnectStatus {
			local := e.peerStatusRef(i)
			assertf(remote.LastFrame >= local.LastFrame,
				"endpoint %s: peer reported frame %d for player %d, older than %d", e.peerID, remote.LastFrame, i, local.LastFrame)
			local.Disconnected = local.Disconnected || remote.Disconnected
			local.LastFrame = max(local.LastFrame, remote.LastFrame)
		}
	}

	lastRecvFrame := e.lastRecvInput.Frame
	for idx, values := range m.Inputs {
		currentFrame := m.StartFrame + idx

		// the very first batch may start past frame 0 because of frame delay
		last := e.lastRecvInput.Frame
		if last == NullFrame {
			last = m.StartFrame - 1
		}
		minimumFrame := last + 1
		assertf(currentFrame <= minimumFrame, "endpoint %s: frame %d is more than one past last received frame %d", e.peerID, currentFrame, last)
		if currentFrame != minimumFrame {
			continue
		}

		e.lastRecvInput = GameInput{Frame: currentFrame, Inputs: values}
		e.queueEvent(endpointEvent{kind: evInput, input: e.lastRecvInput.clone()})
		e.lastInputPacketRecvTime = e.clock.Now()
	}
	assertf(e.lastRecvInput.Frame >= lastRecvFrame, "endpoint %s: input processing went backwards", e.peerID)

	e.clearInputBuffer(m.AckFrame)
	return true
}

func (e *Endpoint) onInputAck(m *InputAck) bool {
	e.clearInputBuffer(m.AckFrame)
	return true
}

func (e *Endpoint) clearInputBuffer(ackFrame int) {
	for !e.pendingOutput.IsEmpty() {
		front, _ := e.pendingOutput.Front()
		if front.Frame >= ackFrame {
			return
		}
		e.lastAckedInput = front
		e.pendingOutput.Pop()
	}
}

func (e *Endpoint) sendSyncRequest() {
	e.syncRandom = rand32()
	e.sendMessage(&SyncRequest{RandomRequest: e.syncRandom})
}

func (e *Endpoint) sendMessage(m Message) {
	if e.transport == nil {
		return
	}
	m.setSequence(e.nextSendSeq)
	e.nextSendSeq += 1
	e.lastSendTime = e.clock.Now()

	if err := e.transport.Send(e.peerID, m); err != nil {
		e.log.Warn(fmt.Sprintf("[telegraph] failed sending message to %s: %s", e.peerID, err), "event", "telegraph:peer:send_fail")
	}
}

func (e *Endpoint) queueEvent(ev endpointEvent) {
	e.log.Debug(fmt.Sprintf("[telegraph] queueing %s event for %s", ev.kind, e.peerID), "event", "telegraph:peer:queue_event")
	must(e.events.Push(ev), "endpoint event queue")
}

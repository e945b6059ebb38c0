package telegraph

type JsonPlayerStats struct {
	Player               int     `json:"player"`
	Type                 string  `json:"type"`
	PeerID               string  `json:"peer_id,omitempty"`
	State                string  `json:"state,omitempty"`
	LastFrame            int     `json:"last_frame"`
	Disconnected         bool    `json:"disconnected"`
	PingMs               float64 `json:"ping_ms"`
	SendQueueLength      int     `json:"send_queue"`
	LocalFrameAdvantage  int     `json:"local_advantage"`
	RemoteFrameAdvantage int     `json:"remote_advantage"`
	OutOfOrder           uint64  `json:"out_of_order"`
}

type JsonSessionStats struct {
	Session            string             `json:"session"`
	Frame              int                `json:"frame"`
	LastConfirmedFrame int                `json:"last_confirmed_frame"`
	Synchronizing      bool               `json:"synchronizing"`
	Players            []*JsonPlayerStats `json:"players"`
}

// Stats returns a snapshot of the session suitable for JSON encoding.
func (b *P2PBackend) Stats() *JsonSessionStats {
	res := &JsonSessionStats{
		Session:            b.id,
		Frame:              b.sync.FrameCount(),
		LastConfirmedFrame: b.sync.LastConfirmedFrame(),
		Synchronizing:      b.synchronizing,
	}

	for queue := 0; queue < b.numPlayers; queue++ {
		st := b.status.Get(queue)
		p := &JsonPlayerStats{
			Player:       queue + 1,
			Type:         PlayerLocal.String(),
			LastFrame:    st.LastFrame,
			Disconnected: st.Disconnected,
			PingMs:       -1,
		}
		if ep := b.endpoints[queue]; ep != nil {
			stats := ep.NetworkStats()
			p.Type = PlayerRemote.String()
			p.PeerID = ep.PeerID()
			p.State = ep.state.String()
			p.PingMs = float64(stats.Ping.Microseconds()) / 1000
			p.SendQueueLength = stats.SendQueueLength
			p.LocalFrameAdvantage = stats.LocalFrameAdvantage
			p.RemoteFrameAdvantage = stats.RemoteFrameAdvantage
			p.OutOfOrder = stats.OutOfOrder
		}
		res.Players = append(res.Players, p)
	}
	return res
}

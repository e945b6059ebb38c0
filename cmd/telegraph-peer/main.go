// Command telegraph-peer runs a bot controlled player in a rollback session
// with other peers, and exposes the session state over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/KarpelesLab/emitter"
	"github.com/KarpelesLab/goupd"
	"github.com/KarpelesLab/telegraph"
	"github.com/gorilla/mux"
)

type peer struct {
	cfg    *telegraph.Config
	log    *slog.Logger
	logbuf *telegraph.LogBuffer
	events *eventCounter

	// lk guards the session and game, used by the loop and HTTP handlers
	lk      sync.Mutex
	game    *game
	session *telegraph.P2PBackend
	local   telegraph.PlayerHandle
	skip    int

	journal *telegraph.Journal
	dialed  sync.Map
	dial    func(ctx context.Context, peerID, addr string) error
}

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	httpAddr := flag.String("http", ":7180", "address of the debug HTTP server, empty to disable")
	mdns := flag.Bool("mdns", false, "announce and discover peers on the local network")
	journal := flag.Bool("journal", false, "record confirmed frames")
	synctest := flag.Bool("synctest", false, "check the simulation for determinism instead of joining a session")
	flag.Parse()

	logbuf, err := telegraph.NewLogBuffer(1024 * 1024)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup log buffer: %s\n", err)
		os.Exit(1)
	}

	cfg, err := telegraph.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %s\n", err)
		os.Exit(1)
	}

	log := logbuf.Logger(cfg.SlogLevel())
	slog.SetDefault(log)
	log.Info(fmt.Sprintf("[telegraph] peer starting, version %s built %s", goupd.GIT_TAG, goupd.DATE_TAG), "event", "telegraph:main:start")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	p := &peer{cfg: cfg, log: log, logbuf: logbuf}
	if *synctest {
		err = p.runSyncTest(ctx)
	} else {
		err = p.run(ctx, *httpAddr, *mdns, *journal)
	}
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(fmt.Sprintf("[telegraph] peer failed: %s", err), "event", "telegraph:main:fail")
		logbuf.Close()
		os.Exit(1)
	}
	logbuf.Close()
}

func peerID(player int) string {
	return "player-" + strconv.Itoa(player)
}

func (p *peer) sessionOptions(hub *emitter.Hub, journal bool) ([]telegraph.SessionOption, error) {
	opts := append(p.cfg.Options(), telegraph.WithLogger(p.log), telegraph.WithEventHub(hub))
	if !journal {
		return opts, nil
	}

	path := p.cfg.JournalPath
	if path == "" {
		var err error
		if path, err = telegraph.DefaultJournalPath(); err != nil {
			return nil, err
		}
	}
	j, err := telegraph.OpenJournal(path)
	if err != nil {
		return nil, err
	}
	p.journal = j
	p.log.Info(fmt.Sprintf("[telegraph] recording confirmed frames to %s", path), "event", "telegraph:main:journal")
	return append(opts, telegraph.WithJournal(j)), nil
}

func (p *peer) run(ctx context.Context, httpAddr string, mdns, journal bool) error {
	cfg := p.cfg
	self := peerID(cfg.LocalPlayer)

	hub := emitter.New()
	p.events = watchEvents(ctx, hub)

	opts, err := p.sessionOptions(hub, journal)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	p.routes(router)

	var (
		transport telegraph.Transport
		inbox     <-chan telegraph.Envelope
		closeT    func() error
	)
	switch cfg.Transport {
	case "quic":
		t, err := telegraph.ListenQUIC(self, cfg.Listen, nil, p.log)
		if err != nil {
			return err
		}
		transport, inbox, closeT = t, t.Inbox(), t.Close
		p.dial = t.Dial
	case "websocket":
		t := telegraph.NewWebSocketTransport(self, p.log)
		router.Handle("/ws", t)
		transport, inbox, closeT = t, t.Inbox(), t.Close
		p.dial = func(ctx context.Context, peerID, addr string) error {
			return t.Dial(ctx, peerID, "ws://"+addr+"/ws")
		}
		// peers reach us through the HTTP server
		httpAddr = cfg.Listen
	}
	defer closeT()

	p.game = newGame(cfg.NumPlayers)
	p.session = telegraph.NewP2PBackend(cfg.NumPlayers, telegraph.Callbacks{
		SaveState:    p.game.save,
		LoadState:    p.game.load,
		AdvanceFrame: func() { p.advance() },
		OnEvent:      p.onEvent,
	}, transport, opts...)
	defer p.session.Close()

	for n := 1; n <= cfg.NumPlayers; n++ {
		pl := telegraph.Player{Type: telegraph.PlayerRemote, Number: n, PeerID: peerID(n)}
		if n == cfg.LocalPlayer {
			pl.Type = telegraph.PlayerLocal
		}
		h, err := p.session.AddPlayer(pl)
		if err != nil {
			return fmt.Errorf("failed to add player %d: %w", n, err)
		}
		if n == cfg.LocalPlayer {
			p.local = h
			if err := p.session.SetFrameDelay(h, cfg.FrameDelay); err != nil {
				return err
			}
		}
	}

	if httpAddr != "" {
		srv := &http.Server{Addr: httpAddr, Handler: router}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.log.Error(fmt.Sprintf("[telegraph] HTTP server failed: %s", err), "event", "telegraph:main:http_fail")
			}
		}()
		defer srv.Close()
	}

	// lower numbered players accept, higher numbered ones dial
	for _, pc := range cfg.Peers {
		if pc.Player < cfg.LocalPlayer {
			p.connect(ctx, peerID(pc.Player), pc.Address)
		}
	}

	if mdns {
		if err := p.startDiscovery(ctx, self); err != nil {
			return err
		}
	}

	return telegraph.RunLoop(ctx, time.Second/time.Duration(cfg.TickRate), inbox, p.tick, func(env telegraph.Envelope) {
		p.lk.Lock()
		defer p.lk.Unlock()
		p.session.HandleMessage(env.From, env.Msg)
	})
}

func (p *peer) connect(ctx context.Context, id, addr string) {
	if _, loaded := p.dialed.LoadOrStore(id, addr); loaded {
		return
	}
	go func() {
		if err := p.dial(ctx, id, addr); err != nil {
			p.dialed.Delete(id)
			p.log.Warn(fmt.Sprintf("[telegraph] could not connect to %s at %s: %s", id, addr, err), "event", "telegraph:main:dial_fail")
		}
	}()
}

func (p *peer) startDiscovery(ctx context.Context, self string) error {
	_, port, err := net.SplitHostPort(p.cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %s: %w", p.cfg.Listen, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("invalid listen port %s: %w", port, err)
	}

	srv, err := telegraph.Announce(self, p.session.ID(), p.cfg.LocalPlayer, portNum)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	go func() {
		err := telegraph.Discover(ctx, self, p.log, func(a telegraph.Announcement) {
			if a.Player < p.cfg.LocalPlayer && a.PeerID == peerID(a.Player) {
				p.connect(ctx, a.PeerID, a.Addr)
			}
		})
		if err != nil {
			p.log.Warn(fmt.Sprintf("[telegraph] mDNS discovery failed: %s", err), "event", "telegraph:main:mdns_fail")
		}
	}()
	return nil
}

// advance runs one simulation tick. It is also the rollback replay callback.
func (p *peer) advance() {
	in, err := p.session.SyncInput()
	if err != nil {
		return
	}
	p.game.step(in)
	p.session.IncrementFrame()
}

func (p *peer) tick() {
	p.lk.Lock()
	defer p.lk.Unlock()

	if p.skip > 0 {
		// running ahead of the remote peers, let them catch up
		p.skip--
	} else {
		err := p.session.AddLocalInput(p.local, botInput(p.cfg.LocalPlayer, p.session.FrameCount()))
		switch {
		case err == nil:
			p.advance()
		case errors.Is(err, telegraph.ErrNotSynchronized), errors.Is(err, telegraph.ErrPredictionThreshold):
		default:
			p.log.Warn(fmt.Sprintf("[telegraph] failed to add local input: %s", err), "event", "telegraph:main:input_fail")
		}
	}
	p.session.PostProcessUpdate()
}

func (p *peer) onEvent(ev telegraph.Event) {
	switch e := ev.(type) {
	case telegraph.EventTimeSync:
		p.skip = e.FramesAhead
	case telegraph.EventConnectionInterrupted:
		p.log.Warn(fmt.Sprintf("[telegraph] player %d interrupted, disconnecting in %s", e.Player, e.DisconnectTimeout), "event", "telegraph:main:interrupted")
	case telegraph.EventDisconnected:
		p.log.Info(fmt.Sprintf("[telegraph] player %d left", e.Player), "event", "telegraph:main:disconnected")
	}
}

func (p *peer) routes(r *mux.Router) {
	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		p.lk.Lock()
		stats := p.session.Stats()
		p.lk.Unlock()
		writeJSON(w, stats)
	}).Methods(http.MethodGet)

	r.HandleFunc("/info", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		p.lk.Lock()
		defer p.lk.Unlock()
		p.session.DumpInfo(w)
	}).Methods(http.MethodGet)

	r.HandleFunc("/events", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, p.events.snapshot())
	}).Methods(http.MethodGet)

	r.HandleFunc("/dmesg", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		p.logbuf.Dmesg(w)
	}).Methods(http.MethodGet)

	r.HandleFunc("/journal/{session}", func(w http.ResponseWriter, req *http.Request) {
		if p.journal == nil {
			http.Error(w, "journal is disabled", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/zstd")
		if err := p.journal.Export(w, mux.Vars(req)["session"]); err != nil {
			p.log.Warn(fmt.Sprintf("[telegraph] journal export failed: %s", err), "event", "telegraph:main:export_fail")
		}
	}).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// runSyncTest plays every player locally and stops at the first desync.
func (p *peer) runSyncTest(ctx context.Context) error {
	return p.syncTest(ctx, newGame(p.cfg.NumPlayers))
}

// simulation is the part of the game the sync test drives.
type simulation interface {
	step(in telegraph.SyncedInputs)
	save() telegraph.SaveResult
	load(state any)
}

func (p *peer) syncTest(ctx context.Context, g simulation) error {
	cfg := p.cfg

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var b *telegraph.SyncTestBackend
	advance := func() error {
		in, err := b.SyncInput()
		if err != nil {
			return err
		}
		g.step(in)
		return b.IncrementFrame()
	}
	b = telegraph.NewSyncTestBackend(cfg.NumPlayers, telegraph.Callbacks{
		SaveState:    g.save,
		LoadState:    g.load,
		AdvanceFrame: func() { advance() },
	}, append(cfg.Options(), telegraph.WithLogger(p.log))...)
	defer b.Close()

	handles := make([]telegraph.PlayerHandle, cfg.NumPlayers)
	for n := 1; n <= cfg.NumPlayers; n++ {
		h, err := b.AddPlayer(telegraph.Player{Type: telegraph.PlayerLocal, Number: n})
		if err != nil {
			return err
		}
		handles[n-1] = h
	}

	var failed error
	fail := func(err error) {
		failed = err
		cancel()
	}
	err := telegraph.RunLoop(ctx, time.Second/time.Duration(cfg.TickRate), nil, func() {
		if failed != nil {
			return
		}
		frame := b.FrameCount()
		for i, h := range handles {
			if err := b.AddLocalInput(h, botInput(i+1, frame)); err != nil {
				fail(err)
				return
			}
		}
		if err := advance(); err != nil {
			fail(err)
			return
		}
		if frame%600 == 0 {
			p.log.Info(fmt.Sprintf("[telegraph] sync test reached frame %d", frame), "event", "telegraph:main:synctest")
		}
	}, func(telegraph.Envelope) {})
	if failed != nil {
		return failed
	}
	return err
}

// eventCounter counts the session events seen on the hub.
type eventCounter struct {
	lk     sync.Mutex
	counts map[string]int
}

var eventNames = []string{
	"connected", "disconnected", "synchronizing", "synchronized", "running",
	"connectionInterrupted", "connectionResumed", "timesync",
}

func watchEvents(ctx context.Context, hub *emitter.Hub) *eventCounter {
	c := &eventCounter{counts: make(map[string]int)}
	for _, name := range eventNames {
		ch := hub.On("telegraph:" + name)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					c.lk.Lock()
					c.counts[name]++
					c.lk.Unlock()
				}
			}
		}()
	}
	return c
}

func (c *eventCounter) snapshot() map[string]int {
	c.lk.Lock()
	defer c.lk.Unlock()
	res := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		res[k] = v
	}
	return res
}

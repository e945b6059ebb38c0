package telegraph

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/KarpelesLab/goupd"
	"github.com/grandcat/zeroconf"
)

// MDNSService is the service type peers announce themselves under on the
// local network.
const MDNSService = "_telegraph._udp"

// Announcement is a peer found on the local network.
type Announcement struct {
	PeerID  string
	Player  int
	Session string
	Version string
	Addr    string
}

// Announce publishes the local peer on the local network until the
// returned server is shut down.
func Announce(peerID, session string, player, port int) (*zeroconf.Server, error) {
	txt := []string{
		"player=" + strconv.Itoa(player),
		"session=" + session,
		"version=" + goupd.GIT_TAG,
	}
	srv, err := zeroconf.Register(peerID, MDNSService, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to announce peer %s: %w", peerID, err)
	}
	return srv, nil
}

// Discover browses the local network for peers and calls found for each
// one but self, until ctx is done.
func Discover(ctx context.Context, self string, log *slog.Logger, found func(Announcement)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if entry.Instance == self || len(entry.AddrIPv4) == 0 {
				continue
			}
			a, err := parseAnnouncement(entry.Instance, entry.Text, entry.AddrIPv4[0], entry.Port)
			if err != nil {
				log.Debug(fmt.Sprintf("[telegraph] ignoring mDNS entry %s: %s", entry.Instance, err), "event", "telegraph:mdns:bad_entry")
				continue
			}
			found(a)
		}
	}()

	return resolver.Browse(ctx, MDNSService, "local.", entries)
}

func parseAnnouncement(instance string, txt []string, ip net.IP, port int) (Announcement, error) {
	a := Announcement{
		PeerID: instance,
		Addr:   net.JoinHostPort(ip.String(), strconv.Itoa(port)),
	}
	for _, kv := range txt {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case "player":
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return a, fmt.Errorf("invalid player number %q", v)
			}
			a.Player = n
		case "session":
			a.Session = v
		case "version":
			a.Version = v
		}
	}
	if a.Player == 0 {
		return a, fmt.Errorf("missing player number")
	}
	return a, nil
}

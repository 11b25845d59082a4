package status

import (
	"sort"
	"strings"
	"time"

	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
)

// formatPeers converts getpeerinfo entries, oldest connection first.
func formatPeers(in []rpcclient.PeerInfo, now time.Time) []Peer {
	peers := make([]Peer, 0, len(in))
	for _, p := range in {
		peers = append(peers, Peer{
			Address:   peerHost(p.Addr),
			Protocol:  p.Version,
			Version:   strings.Replace(p.SubVer, "/", "", 2),
			Uptime:    uptimeSince(p.ConnTime, now),
			Timestamp: p.ConnTime,
		})
	}
	sort.SliceStable(peers, func(i, j int) bool {
		return peers[i].Timestamp < peers[j].Timestamp
	})
	return peers
}

// peerHost strips the port from "host:port" and "[v6]:port".
func peerHost(addr string) string {
	if strings.HasPrefix(addr, "[") {
		host, _, _ := strings.Cut(addr[1:], "]")
		return host
	}
	host, _, _ := strings.Cut(addr, ":")
	return host
}

// uptimeSince splits the time elapsed since conntime. Connection times in
// the future count as zero.
func uptimeSince(conntime int64, now time.Time) Uptime {
	secs := int64(now.Sub(time.Unix(conntime, 0)) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return Uptime{
		Days:    secs / 86400,
		Hours:   secs / 3600 % 24,
		Minutes: secs / 60 % 60,
		Seconds: secs % 60,
	}
}

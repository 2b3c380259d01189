package tracker

import (
	"context"
	"encoding/binary"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"btfetch/common/bittorrent"
	"btfetch/common/fault"

	"github.com/juju/errors"
)

const compactPeerSize = 6

// Options carries the client identity sent with every announce.
type Options struct {
	PeerID [20]byte
	Port   uint16
}

type AnnounceRequest struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Compact    bool
}

func NewAnnounceRequest(t *bittorrent.Torrent, opts Options) (*AnnounceRequest, error) {
	infoHash, err := t.InfoHash()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &AnnounceRequest{
		InfoHash: infoHash,
		PeerID:   opts.PeerID,
		Port:     opts.Port,
		Left:     t.Info.Length,
		Compact:  true,
	}, nil
}

type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

type AnnounceResponse struct {
	Interval   int64
	Complete   int64
	Incomplete int64
	Peers      []Peer
}

// Addrs lists peers as host:port in the order the tracker sent them.
func (r *AnnounceResponse) Addrs() []string {
	ret := make([]string, 0, len(r.Peers))
	for _, p := range r.Peers {
		ret = append(ret, p.String())
	}
	return ret
}

type Tracker interface {
	Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResponse, error)
}

// NewTracker picks the client for the announce URL scheme.
func NewTracker(announce string, client *http.Client) (Tracker, error) {
	u, err := url.Parse(announce)
	if err != nil {
		return nil, fault.Wrap(fault.ErrParse, err, "announce url")
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPTracker(u, client), nil
	case "udp":
		return NewUDPTracker(u.Host), nil
	default:
		return nil, fault.Parse("unsupported announce scheme %q", u.Scheme)
	}
}

// ParseCompactPeers splits 6-byte records: 4 bytes IPv4, 2 bytes port, both
// big-endian.
func ParseCompactPeers(raw []byte) ([]Peer, error) {
	if len(raw)%compactPeerSize != 0 {
		return nil, fault.Parse("compact peers length %d is not a multiple of %d", len(raw), compactPeerSize)
	}
	peers := make([]Peer, 0, len(raw)/compactPeerSize)
	for i := 0; i < len(raw); i += compactPeerSize {
		peers = append(peers, Peer{
			IP:   net.IPv4(raw[i], raw[i+1], raw[i+2], raw[i+3]).To4(),
			Port: binary.BigEndian.Uint16(raw[i+4 : i+6]),
		})
	}
	return peers, nil
}

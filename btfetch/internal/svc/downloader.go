package svc

import (
	"context"

	"btfetch/common/bittorrent"
	"btfetch/common/bittorrent/tracker"
	"btfetch/common/fault"
	"btfetch/common/util"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/time/rate"
)

// Downloader fetches single pieces from the peers a tracker hands out. Peers
// that fail are benched for BadPeerTTL and skipped by later attempts.
type Downloader struct {
	svcCtx   *ServiceContext
	peerID   [20]byte
	limiter  *rate.Limiter
	badPeers *util.LRWCache[string, error]
}

func NewDownloader(svcCtx *ServiceContext) *Downloader {
	c := svcCtx.Config
	return &Downloader{
		svcCtx:   svcCtx,
		peerID:   c.PeerIDBytes(),
		limiter:  rate.NewLimiter(rate.Limit(c.DialRateLimit), c.DialRateLimit),
		badPeers: util.NewLRWCache[string, error](c.BadPeerTTL, c.MaxBadPeers),
	}
}

// Benched reports whether addr failed recently.
func (d *Downloader) Benched(addr string) bool {
	_, ok := d.badPeers.Get(addr)
	return ok
}

func (d *Downloader) announce(ctx context.Context, t *bittorrent.Torrent) (*tracker.AnnounceResponse, error) {
	client, err := tracker.NewTracker(t.Announce, d.svcCtx.HTTPClient)
	if err != nil {
		return nil, errors.Trace(err)
	}
	req, err := tracker.NewAnnounceRequest(t, tracker.Options{
		PeerID: d.peerID,
		Port:   uint16(d.svcCtx.Config.Port),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if timeout := d.svcCtx.Config.TrackerTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	metricDownloadEvent.Inc("announce")
	resp, err := client.Announce(ctx, req)
	if err != nil {
		metricDownloadEvent.Inc("announce_fail")
		return nil, errors.Trace(err)
	}
	logx.WithContext(ctx).Debugf("Tracker returned %d peers, interval %d", len(resp.Peers), resp.Interval)
	return resp, nil
}

// Peers announces once and returns the peers in tracker order.
func (d *Downloader) Peers(ctx context.Context, t *bittorrent.Torrent) ([]tracker.Peer, error) {
	resp, err := d.announce(ctx, t)
	if err != nil {
		return nil, err
	}
	return resp.Peers, nil
}

func (d *Downloader) newPeer(infoHash [20]byte, addr string) *bittorrent.BitTorrent {
	bt := bittorrent.NewBitTorrent(d.peerID, infoHash, addr)
	bt.Proxy = d.svcCtx.Dialer
	bt.Timeout = d.svcCtx.Config.PeerTimeout
	bt.SetTrafficMetricFunc(func(label string, length int) {
		metricTrafficCounter.Add(float64(length), label)
	})
	return bt
}

// Handshake connects to addr and returns the peer id it answers with.
func (d *Downloader) Handshake(ctx context.Context, t *bittorrent.Torrent, addr string) ([20]byte, error) {
	infoHash, err := t.InfoHash()
	if err != nil {
		return [20]byte{}, errors.Trace(err)
	}
	bt := d.newPeer(infoHash, addr)
	err = bt.Start(ctx)
	if err != nil {
		return [20]byte{}, errors.Trace(err)
	}
	defer bt.Stop()
	peerID, err := bt.Handshake()
	if err != nil {
		return [20]byte{}, errors.Trace(err)
	}
	return peerID, nil
}

// Download returns piece index, verified against its SHA-1. Peers are tried
// in tracker order until one delivers.
func (d *Downloader) Download(ctx context.Context, t *bittorrent.Torrent, index int) ([]byte, error) {
	if index < 0 || index >= t.NumPieces() {
		return nil, fault.Parse("piece index %d out of range [0, %d)", index, t.NumPieces())
	}
	infoHash, err := t.InfoHash()
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := d.announce(ctx, t)
	if err != nil {
		return nil, err
	}

	expected := t.PieceHashes()[index]
	length := t.PieceSize(index)
	logger := logx.WithContext(ctx)
	attempts := 0
	var lastErr error
	for _, addr := range resp.Addrs() {
		if d.Benched(addr) {
			metricDownloadEvent.Inc("skip_benched")
			continue
		}
		if limit := d.svcCtx.Config.MaxPeerAttempts; limit > 0 && attempts >= limit {
			break
		}
		err := d.waitDial(ctx, addr)
		if err != nil {
			return nil, err
		}
		attempts++
		data, err := d.fetch(ctx, infoHash, addr, index, length, expected)
		switch fault.Classify(err) {
		case fault.Success:
			metricDownloadEvent.Inc("piece_ok")
			logger.Infof("Piece %d (%d bytes) from %s", index, len(data), addr)
			return data, nil
		case fault.Retryable:
			metricDownloadEvent.Inc("peer_fail")
			logger.Infof("Peer %s failed piece %d: %v", addr, index, err)
			d.badPeers.Set(addr, err)
			lastErr = err
		default:
			return nil, errors.Trace(err)
		}
	}
	if lastErr == nil {
		return nil, fault.Network("no usable peer for piece %d among %d", index, len(resp.Peers))
	}
	return nil, fault.Wrap(fault.ErrNetwork, lastErr, "all %d attempted peers failed piece %d", attempts, index)
}

// waitDial blocks until the dial limiter admits one more peer. Its failures
// concern the whole download, not addr, so the caller aborts on them.
func (d *Downloader) waitDial(ctx context.Context, addr string) error {
	err := d.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.Trace(ctx.Err())
	}
	metricDownloadEvent.Inc("dial_budget_exceeded")
	return fault.Wrap(fault.ErrTimeout, err, "waiting to dial %s", addr)
}

func (d *Downloader) fetch(ctx context.Context, infoHash [20]byte, addr string, index int, length int, expected [20]byte) ([]byte, error) {
	bt := d.newPeer(infoHash, addr)
	err := bt.Start(ctx)
	if err != nil {
		return nil, err
	}
	defer bt.Stop()
	_, err = bt.Handshake()
	if err != nil {
		return nil, err
	}
	data, err := bt.DownloadPiece(uint32(index), length)
	if err != nil {
		return nil, err
	}
	err = bittorrent.VerifyPiece(data, expected)
	if err != nil {
		metricDownloadEvent.Inc("hash_mismatch")
		return nil, err
	}
	return data, nil
}

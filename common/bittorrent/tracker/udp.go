package tracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"net"
	"time"

	"btfetch/common/fault"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

const udpPacketSize = 2048

var _ Tracker = (*UDPTracker)(nil)

// UDPTracker speaks BEP 15. Each Announce opens its own socket and runs
// connect then announce synchronously.
type UDPTracker struct {
	addr string
}

func NewUDPTracker(addr string) *UDPTracker {
	return &UDPTracker{addr: addr}
}

// Announce implements Tracker.
func (t *UDPTracker) Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResponse, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "udp", t.addr)
	if err != nil {
		return nil, fault.Wrap(fault.ErrNetwork, err, "dial tracker %s", t.addr)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	connectionID, err := t.connect(conn)
	if err != nil {
		return nil, t.wrap(ctx, err)
	}
	ret, err := t.announce(conn, connectionID, req)
	if err != nil {
		return nil, t.wrap(ctx, err)
	}
	return ret, nil
}

func (t *UDPTracker) wrap(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return errors.Trace(ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.Wrap(fault.ErrTimeout, err, "tracker %s", t.addr)
	}
	return errors.Trace(err)
}

func (t *UDPTracker) connect(conn net.Conn) (uint64, error) {
	req := ConnectRequest{
		ProtocolID:    ProtocolID,
		Action:        ActionConnect,
		TransactionID: rand.Uint32(),
	}
	err := binary.Write(conn, binary.BigEndian, req)
	if err != nil {
		return 0, fault.Wrap(fault.ErrNetwork, err, "send connect")
	}
	reader, err := t.receive(conn, ActionConnect, req.TransactionID)
	if err != nil {
		return 0, err
	}
	if reader.Len() < ConnectResponseSize {
		return 0, fault.Protocol("connect response is %d bytes, want %d", reader.Len(), ConnectResponseSize)
	}
	resp := ConnectResponse{}
	err = binary.Read(reader, binary.BigEndian, &resp)
	if err != nil {
		return 0, fault.Wrap(fault.ErrProtocol, err, "connect response")
	}
	logx.Debugf("Connected to tracker %s: %d", t.addr, resp.ConnectionID)
	return resp.ConnectionID, nil
}

func (t *UDPTracker) announce(conn net.Conn, connectionID uint64, req *AnnounceRequest) (*AnnounceResponse, error) {
	pkt := AnnouncePacket{
		TrackerRequestHeader: TrackerRequestHeader{
			ConnectionID:  connectionID,
			Action:        ActionAnnounce,
			TransactionID: rand.Uint32(),
		},
		InfoHash:   req.InfoHash,
		PeerID:     req.PeerID,
		Downloaded: req.Downloaded,
		Left:       req.Left,
		Uploaded:   req.Uploaded,
		Event:      EventNone,
		Key:        rand.Uint32(),
		NumWant:    -1,
		Port:       req.Port,
	}
	err := binary.Write(conn, binary.BigEndian, pkt)
	if err != nil {
		return nil, fault.Wrap(fault.ErrNetwork, err, "send announce")
	}
	reader, err := t.receive(conn, ActionAnnounce, pkt.TransactionID)
	if err != nil {
		return nil, err
	}
	if reader.Len() < AnnounceResponseHeaderSize {
		return nil, fault.Protocol("announce response is %d bytes, want at least %d", reader.Len(), AnnounceResponseHeaderSize)
	}
	hdr := AnnounceResponseHeader{}
	err = binary.Read(reader, binary.BigEndian, &hdr)
	if err != nil {
		return nil, fault.Wrap(fault.ErrProtocol, err, "announce response")
	}
	peers, err := ParseCompactPeers(reader.Bytes())
	if err != nil {
		return nil, err
	}
	return &AnnounceResponse{
		Interval:   int64(hdr.Interval),
		Complete:   int64(hdr.Seeders),
		Incomplete: int64(hdr.Leechers),
		Peers:      peers,
	}, nil
}

// receive reads one packet and checks it answers transactionID with action.
// The returned reader is positioned after the response header.
func (t *UDPTracker) receive(conn net.Conn, action uint32, transactionID uint32) (*bytes.Buffer, error) {
	buf := make([]byte, udpPacketSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fault.Wrap(fault.ErrNetwork, err, "read from tracker %s", t.addr)
	}
	if n < TrackerResponseHeaderSize {
		return nil, fault.Protocol("packet of %d bytes from tracker %s", n, t.addr)
	}
	reader := bytes.NewBuffer(buf[:n])
	hdr := TrackerResponseHeader{}
	err = binary.Read(reader, binary.BigEndian, &hdr)
	if err != nil {
		return nil, fault.Wrap(fault.ErrProtocol, err, "parse header")
	}
	if hdr.TransactionID != transactionID {
		return nil, fault.Protocol("transaction %d, expected %d", hdr.TransactionID, transactionID)
	}
	switch hdr.Action {
	case action:
		return reader, nil
	case ActionError:
		return nil, fault.Network("tracker error: %s", reader.String())
	default:
		return nil, fault.Protocol("unknown action: %d", hdr.Action)
	}
}

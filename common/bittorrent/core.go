package bittorrent

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"btfetch/common/fault"

	"github.com/pkg/errors"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/net/proxy"
)

const (
	BlockSize        = 1 << 14
	maxMessageLength = 1 << 20
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateHandshaking
	StateAwaitingBitfield
	StateSendingInterested
	StateAwaitingUnchoke
	StateDownloading
	StateDone
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateHandshaking:
		return "handshaking"
	case StateAwaitingBitfield:
		return "awaiting_bitfield"
	case StateSendingInterested:
		return "sending_interested"
	case StateAwaitingUnchoke:
		return "awaiting_unchoke"
	case StateDownloading:
		return "downloading"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

type TrafficMetricFunc func(label string, length int)

// BitTorrent is a single peer-wire connection. It is not safe for concurrent
// use; one goroutine owns it from Start to Stop.
type BitTorrent struct {
	Proxy    proxy.Dialer
	Addr     string
	InfoHash [20]byte
	PeerID   [20]byte
	// Timeout bounds the dial and every single read or write. Zero disables it.
	Timeout time.Duration

	conn              net.Conn
	state             State
	remotePeerID      [20]byte
	trafficMetricFunc TrafficMetricFunc
}

func NewBitTorrent(peerID, infoHash [20]byte, addr string) *BitTorrent {
	return &BitTorrent{
		Addr:     addr,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

func (bt *BitTorrent) SetTrafficMetricFunc(f TrafficMetricFunc) {
	bt.trafficMetricFunc = f
}

func (bt *BitTorrent) trafficMetric(label string, length int) {
	if bt.trafficMetricFunc != nil {
		bt.trafficMetricFunc(label, length)
	}
}

func (bt *BitTorrent) State() State {
	return bt.state
}

func (bt *BitTorrent) RemotePeerID() [20]byte {
	return bt.remotePeerID
}

func (bt *BitTorrent) Start(ctx context.Context) error {
	if bt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, bt.Timeout)
		defer cancel()
	}
	var conn net.Conn
	var err error
	if bt.Proxy != nil {
		if d, ok := bt.Proxy.(proxy.ContextDialer); ok {
			conn, err = d.DialContext(ctx, "tcp", bt.Addr)
		} else {
			conn, err = bt.Proxy.Dial("tcp", bt.Addr)
		}
	} else {
		d := net.Dialer{}
		conn, err = d.DialContext(ctx, "tcp", bt.Addr)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.WithStack(err)
		}
		if isTimeout(err) {
			return errors.WithStack(fault.Wrap(fault.ErrTimeout, err, "dial %s", bt.Addr))
		}
		return errors.WithStack(fault.Wrap(fault.ErrNetwork, err, "dial %s", bt.Addr))
	}
	bt.Attach(conn)
	return nil
}

// Attach hands an already established stream to bt.
func (bt *BitTorrent) Attach(conn net.Conn) {
	bt.conn = conn
	bt.state = StateConnected
}

func (bt *BitTorrent) Stop() error {
	if bt.conn == nil {
		return nil
	}
	err := bt.conn.Close()
	bt.conn = nil
	bt.state = StateDisconnected
	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (bt *BitTorrent) write(data []byte) (int, error) {
	if bt.Timeout > 0 {
		_ = bt.conn.SetWriteDeadline(time.Now().Add(bt.Timeout))
	}
	n, err := bt.conn.Write(data)
	if err != nil {
		return n, bt.streamError(err, "write")
	}
	return n, nil
}

func (bt *BitTorrent) read(data []byte) (int, error) {
	if bt.Timeout > 0 {
		_ = bt.conn.SetReadDeadline(time.Now().Add(bt.Timeout))
	}
	n, err := io.ReadFull(bt.conn, data)
	if err != nil {
		return n, bt.streamError(err, "read")
	}
	return n, nil
}

func (bt *BitTorrent) streamError(err error, op string) error {
	switch {
	case isTimeout(err):
		return fault.Wrap(fault.ErrTimeout, err, "%s %s", op, bt.Addr)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fault.Wrap(fault.ErrProtocol, err, "short %s from %s", op, bt.Addr)
	default:
		return fault.Wrap(fault.ErrIO, err, "%s %s", op, bt.Addr)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Handshake sends our handshake and returns the remote peer id. The remote
// side must echo our info hash.
func (bt *BitTorrent) Handshake() ([20]byte, error) {
	if bt.conn == nil {
		return [20]byte{}, errors.WithStack(fault.Protocol("handshake without connection"))
	}
	bt.state = StateHandshaking
	pkt := NewHandshake(bt.InfoHash, bt.PeerID).Bytes()
	_, err := bt.write(pkt)
	if err != nil {
		return [20]byte{}, errors.WithStack(err)
	}
	bt.trafficMetric("out_bt_handshake", len(pkt))

	data := make([]byte, HandshakeLength)
	_, err = bt.read(data)
	if err != nil {
		return [20]byte{}, errors.WithStack(err)
	}
	bt.trafficMetric("in_bt_handshake", len(data))
	remote, err := ParseHandshake(data)
	if err != nil {
		return [20]byte{}, errors.WithStack(err)
	}
	if !bytes.Equal(remote.InfoHash[:], bt.InfoHash[:]) {
		return [20]byte{}, errors.WithStack(fault.Protocol("info hash mismatch: sent %x, got %x", bt.InfoHash, remote.InfoHash))
	}
	bt.remotePeerID = remote.PeerID
	bt.state = StateAwaitingBitfield
	logx.Debugf("Handshake with %s done, peer id %x", bt.Addr, remote.PeerID)
	return remote.PeerID, nil
}

func (bt *BitTorrent) sendMessage(msg Message) error {
	frame := Serialize(msg)
	_, err := bt.write(frame)
	if err != nil {
		return errors.WithStack(err)
	}
	bt.trafficMetric("out_bt_"+msg.ID().String(), len(frame))
	return nil
}

func (bt *BitTorrent) SendInterested() error {
	return bt.sendMessage(Interested{})
}

func (bt *BitTorrent) SendRequest(index, begin, length uint32) error {
	return bt.sendMessage(Request{Index: index, Begin: begin, Length: length})
}

// ReadMessage reads one frame. A nil Message with a nil error is a keep-alive.
func (bt *BitTorrent) ReadMessage() (Message, error) {
	msgLengthB := make([]byte, 4)
	_, err := bt.read(msgLengthB)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	msgLength := binary.BigEndian.Uint32(msgLengthB)
	if msgLength == 0 {
		bt.trafficMetric("in_bt_keepalive", len(msgLengthB))
		return nil, nil
	}
	if msgLength > maxMessageLength {
		return nil, errors.WithStack(fault.Protocol("message length %d exceeds %d", msgLength, maxMessageLength))
	}
	body := make([]byte, msgLength)
	_, err = bt.read(body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	msg, err := ParseMessage(body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	bt.trafficMetric("in_bt_"+msg.ID().String(), len(msgLengthB)+len(body))
	return msg, nil
}

// readUntil skips keep-alives and fails on any message other than want.
func (bt *BitTorrent) readUntil(want MessageID) (Message, error) {
	for {
		msg, err := bt.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		if msg.ID() != want {
			return nil, errors.WithStack(fault.Protocol("expected %s, got %s", want, msg.ID()))
		}
		return msg, nil
	}
}

// DownloadPiece fetches piece index of the given length block by block, one
// request in flight at a time. The data is not verified here.
func (bt *BitTorrent) DownloadPiece(index uint32, length int) ([]byte, error) {
	if bt.state != StateAwaitingBitfield {
		return nil, errors.WithStack(fault.Protocol("download in state %s", bt.state))
	}
	if length <= 0 {
		return nil, errors.WithStack(fault.Parse("piece length %d", length))
	}
	_, err := bt.readUntil(MsgBitfield)
	if err != nil {
		return nil, err
	}
	bt.state = StateSendingInterested
	err = bt.SendInterested()
	if err != nil {
		return nil, err
	}
	bt.state = StateAwaitingUnchoke
	_, err = bt.readUntil(MsgUnchoke)
	if err != nil {
		return nil, err
	}

	bt.state = StateDownloading
	data := make([]byte, 0, length)
	remaining := length
	for blockIndex := 0; remaining > 0; blockIndex++ {
		blockLength := BlockSize
		if remaining < blockLength {
			blockLength = remaining
		}
		begin := uint32(blockIndex * BlockSize)
		err = bt.SendRequest(index, begin, uint32(blockLength))
		if err != nil {
			return nil, err
		}
		msg, err := bt.readUntil(MsgPiece)
		if err != nil {
			return nil, err
		}
		piece := msg.(Piece)
		if piece.Index != index || piece.Begin != begin {
			return nil, errors.WithStack(fault.Protocol("requested block %d@%d, got %d@%d", index, begin, piece.Index, piece.Begin))
		}
		if len(piece.Block) != blockLength {
			return nil, errors.WithStack(fault.Protocol("requested %d bytes at %d, got %d", blockLength, begin, len(piece.Block)))
		}
		data = append(data, piece.Block...)
		remaining -= blockLength
	}
	bt.state = StateDone
	logx.Debugf("Downloaded piece %d (%d bytes) from %s", index, len(data), bt.Addr)
	return data, nil
}

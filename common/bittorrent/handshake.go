package bittorrent

import (
	"bytes"
	"io"

	"btfetch/common/fault"
)

const HandshakeLength = 68

var (
	btProtocol = []byte("BitTorrent protocol")
	btReserved = [8]byte{}
)

type Handshake struct {
	Reserved [8]byte
	InfoHash [20]byte
	PeerID   [20]byte
}

func NewHandshake(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{
		Reserved: btReserved,
		InfoHash: infoHash,
		PeerID:   peerID,
	}
}

func (h *Handshake) Bytes() []byte {
	pkt := make([]byte, 1, HandshakeLength)
	pkt[0] = byte(len(btProtocol))
	pkt = append(pkt, btProtocol...)
	pkt = append(pkt, h.Reserved[:]...)
	pkt = append(pkt, h.InfoHash[:]...)
	pkt = append(pkt, h.PeerID[:]...)
	return pkt
}

// ReadHandshake reads exactly HandshakeLength bytes from r.
func ReadHandshake(r io.Reader) (*Handshake, error) {
	buf := make([]byte, HandshakeLength)
	_, err := io.ReadFull(r, buf)
	if err != nil {
		return nil, fault.Wrap(fault.ErrProtocol, err, "short handshake")
	}
	return ParseHandshake(buf)
}

func ParseHandshake(buf []byte) (*Handshake, error) {
	if len(buf) != HandshakeLength {
		return nil, fault.Protocol("handshake is %d bytes", len(buf))
	}
	if int(buf[0]) != len(btProtocol) {
		return nil, fault.Protocol("protocol string length %d", buf[0])
	}
	if !bytes.Equal(buf[1:20], btProtocol) {
		return nil, fault.Protocol("not bt protocol: %q", buf[1:20])
	}
	h := &Handshake{}
	copy(h.Reserved[:], buf[20:28])
	copy(h.InfoHash[:], buf[28:48])
	copy(h.PeerID[:], buf[48:68])
	return h, nil
}

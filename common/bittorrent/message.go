package bittorrent

import (
	"encoding/binary"
	"fmt"

	"btfetch/common/fault"
)

type MessageID uint8

const (
	MsgChoke         MessageID = 0
	MsgUnchoke       MessageID = 1
	MsgInterested    MessageID = 2
	MsgNotInterested MessageID = 3
	MsgHave          MessageID = 4
	MsgBitfield      MessageID = 5
	MsgRequest       MessageID = 6
	MsgPiece         MessageID = 7
	MsgCancel        MessageID = 8
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return fmt.Sprintf("message(%d)", uint8(id))
	}
}

// Message is one of BitField, Unchoke, Piece, Interested or Request.
// Only the first three are ever read from a peer.
type Message interface {
	ID() MessageID
	payload() []byte
}

type BitField struct {
	Bits []byte
}

type Unchoke struct{}

type Piece struct {
	Index uint32
	Begin uint32
	Block []byte
}

type Interested struct{}

type Request struct {
	Index  uint32
	Begin  uint32
	Length uint32
}

func (BitField) ID() MessageID   { return MsgBitfield }
func (Unchoke) ID() MessageID    { return MsgUnchoke }
func (Piece) ID() MessageID      { return MsgPiece }
func (Interested) ID() MessageID { return MsgInterested }
func (Request) ID() MessageID    { return MsgRequest }

func (m BitField) payload() []byte { return m.Bits }
func (Unchoke) payload() []byte    { return nil }
func (Interested) payload() []byte { return nil }

func (m Piece) payload() []byte {
	buf := make([]byte, 8, 8+len(m.Block))
	binary.BigEndian.PutUint32(buf[0:4], m.Index)
	binary.BigEndian.PutUint32(buf[4:8], m.Begin)
	return append(buf, m.Block...)
}

func (m Request) payload() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], m.Index)
	binary.BigEndian.PutUint32(buf[4:8], m.Begin)
	binary.BigEndian.PutUint32(buf[8:12], m.Length)
	return buf
}

// Serialize frames m as <4-byte big-endian length><id><payload>.
func Serialize(m Message) []byte {
	p := m.payload()
	buf := make([]byte, 5, 5+len(p))
	binary.BigEndian.PutUint32(buf[0:4], uint32(1+len(p)))
	buf[4] = byte(m.ID())
	return append(buf, p...)
}

// ParseMessage decodes a frame body (id + payload, length prefix stripped).
func ParseMessage(body []byte) (Message, error) {
	if len(body) == 0 {
		return nil, fault.Protocol("empty message body")
	}
	id := MessageID(body[0])
	payload := body[1:]
	switch id {
	case MsgBitfield:
		return BitField{Bits: payload}, nil
	case MsgUnchoke:
		return Unchoke{}, nil
	case MsgPiece:
		if len(payload) < 8 {
			return nil, fault.Protocol("piece payload too short: %d bytes", len(payload))
		}
		return Piece{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Block: payload[8:],
		}, nil
	default:
		return nil, fault.Protocol("unexpected message %s", id)
	}
}

package tracker

import "encoding/binary"

const (
	ProtocolID uint64 = 0x41727101980
)

const (
	ActionConnect  = 0x00
	ActionAnnounce = 0x01
	ActionError    = 0x03
)

const (
	EventNone uint32 = iota
	EventCompleted
	EventStarted
	EventStopped
)

var (
	TrackerResponseHeaderSize  = binary.Size(TrackerResponseHeader{})
	ConnectResponseSize        = binary.Size(ConnectResponse{})
	AnnounceResponseHeaderSize = binary.Size(AnnounceResponseHeader{})
)

type ConnectRequest struct {
	ProtocolID    uint64
	Action        uint32
	TransactionID uint32
}

type ConnectResponse struct {
	ConnectionID uint64
}

type TrackerRequestHeader struct {
	ConnectionID  uint64
	Action        uint32
	TransactionID uint32
}

type TrackerResponseHeader struct {
	Action        uint32
	TransactionID uint32
}

type AnnouncePacket struct {
	TrackerRequestHeader
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      uint32
	IP         uint32
	Key        uint32
	NumWant    int32
	Port       uint16
}

type AnnounceResponseHeader struct {
	Interval uint32
	Leechers uint32
	Seeders  uint32
}

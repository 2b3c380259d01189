package logic

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"btfetch/btfetch/internal/config"
	"btfetch/btfetch/internal/svc"
	"btfetch/common/bencode"
	"btfetch/common/bittorrent"
	"btfetch/common/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pieceLength = 16384

var remotePeerID = [20]byte{'-', 'q', 'B', '4', '6', '2', '0', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b'}

func payload() []byte {
	data := make([]byte, pieceLength+100)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func newSvcCtx(t *testing.T) *svc.ServiceContext {
	svcCtx, err := svc.NewServiceContext(config.Config{
		PeerID:         "00112233445566778899",
		Port:           6881,
		PeerTimeout:    2 * time.Second,
		TrackerTimeout: 2 * time.Second,
		DialRateLimit:  100,
		BadPeerTTL:     time.Minute,
		MaxBadPeers:    16,
	})
	require.NoError(t, err)
	return svcCtx
}

func writeTorrent(t *testing.T, announce string) string {
	data := payload()
	first := sha1.Sum(data[:pieceLength])
	second := sha1.Sum(data[pieceLength:])
	raw, err := bencode.BEncode(map[string]any{
		"announce": announce,
		"info": map[string]any{
			"length":       len(data),
			"name":         "payload.bin",
			"piece length": pieceLength,
			"pieces":       append(first[:], second[:]...),
		},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "payload.torrent")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

// listenPeer serves the full piece exchange on a loopback TCP socket.
func listenPeer(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go servePeer(conn)
		}
	}()
	return l.Addr().String()
}

func servePeer(conn net.Conn) {
	defer conn.Close()
	hs, err := bittorrent.ReadHandshake(conn)
	if err != nil {
		return
	}
	if _, err = conn.Write(bittorrent.NewHandshake(hs.InfoHash, remotePeerID).Bytes()); err != nil {
		return
	}
	if _, err = conn.Write(bittorrent.Serialize(bittorrent.BitField{Bits: []byte{0xc0}})); err != nil {
		return
	}
	if _, err = io.ReadFull(conn, make([]byte, 5)); err != nil {
		return
	}
	if _, err = conn.Write(bittorrent.Serialize(bittorrent.Unchoke{})); err != nil {
		return
	}
	data := payload()
	for {
		req := make([]byte, 17)
		if _, err = io.ReadFull(conn, req); err != nil {
			return
		}
		index := binary.BigEndian.Uint32(req[5:9])
		begin := binary.BigEndian.Uint32(req[9:13])
		length := binary.BigEndian.Uint32(req[13:17])
		offset := int(index)*pieceLength + int(begin)
		msg := bittorrent.Piece{Index: index, Begin: begin, Block: data[offset : offset+int(length)]}
		if _, err = conn.Write(bittorrent.Serialize(msg)); err != nil {
			return
		}
	}
}

func trackerFor(t *testing.T, addr string) string {
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	peers := append([]byte(net.ParseIP(host).To4()), byte(port>>8), byte(port))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := bencode.BEncode(map[string]any{"interval": 60, "peers": peers})
		_, _ = w.Write(raw)
	}))
	t.Cleanup(server.Close)
	return server.URL + "/announce"
}

func TestDecodeLogic(t *testing.T) {
	l := NewDecodeLogic(context.Background(), nil)
	cases := map[string]string{
		"4:spam":                  `"spam"`,
		"i-42e":                   `-42`,
		"l5:helloi52ee":           `["hello",52]`,
		"d3:foo3:bar5:helloi52ee": `{"foo":"bar","hello":52}`,
		"le":                      `[]`,
		"0:":                      `""`,
	}
	for in, want := range cases {
		got, err := l.Decode(in)
		if assert.NoError(t, err, in) {
			assert.JSONEq(t, want, got, in)
		}
	}
	_, err := l.Decode("x")
	assert.ErrorIs(t, err, fault.ErrParse)
	_, err = l.Decode("5:abc")
	assert.ErrorIs(t, err, fault.ErrParse)
}

func TestInfoLogic(t *testing.T) {
	path := writeTorrent(t, "http://tracker.example/announce")
	ret, err := NewInfoLogic(context.Background(), nil).Info(path)
	require.NoError(t, err)

	data := payload()
	first := sha1.Sum(data[:pieceLength])
	second := sha1.Sum(data[pieceLength:])
	assert.Equal(t, "http://tracker.example/announce", ret.Announce)
	assert.Equal(t, "payload.bin", ret.Name)
	assert.Equal(t, int64(len(data)), ret.Length)
	assert.Equal(t, int64(pieceLength), ret.PieceLength)
	assert.Len(t, ret.InfoHash, 40)
	assert.Equal(t, []string{hex.EncodeToString(first[:]), hex.EncodeToString(second[:])}, ret.PieceHashes)
	assert.Contains(t, ret.String(), "Info Hash: "+ret.InfoHash+"\n")
	assert.Contains(t, ret.String(), "Piece Hashes:\n"+ret.PieceHashes[0]+"\n"+ret.PieceHashes[1]+"\n")

	_, err = NewInfoLogic(context.Background(), nil).Info(filepath.Join(t.TempDir(), "missing.torrent"))
	assert.ErrorIs(t, err, fault.ErrIO)
}

func TestPeersLogic(t *testing.T) {
	path := writeTorrent(t, trackerFor(t, "10.1.2.3:51413"))
	peers, err := NewPeersLogic(context.Background(), newSvcCtx(t)).Peers(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3:51413"}, peers)
}

func TestHandshakeLogic(t *testing.T) {
	addr := listenPeer(t)
	path := writeTorrent(t, "http://tracker.example/announce")
	peerID, err := NewHandshakeLogic(context.Background(), newSvcCtx(t)).Handshake(path, addr)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(remotePeerID[:]), peerID)
}

func TestDownloadPieceLogic(t *testing.T) {
	addr := listenPeer(t)
	path := writeTorrent(t, trackerFor(t, addr))
	svcCtx := newSvcCtx(t)
	dir := t.TempDir()
	data := payload()

	out := filepath.Join(dir, "piece-0")
	require.NoError(t, NewDownloadPieceLogic(context.Background(), svcCtx).DownloadPiece(path, 0, out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data[:pieceLength], got)

	out = filepath.Join(dir, "piece-1")
	require.NoError(t, NewDownloadPieceLogic(context.Background(), svcCtx).DownloadPiece(path, 1, out))
	got, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data[pieceLength:], got)
	_, err = os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err))

	out = filepath.Join(dir, "piece-2")
	err = NewDownloadPieceLogic(context.Background(), svcCtx).DownloadPiece(path, 2, out)
	assert.ErrorIs(t, err, fault.ErrParse)
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

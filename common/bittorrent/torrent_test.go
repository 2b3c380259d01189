package bittorrent

import (
	"bytes"
	"crypto/sha1"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"btfetch/common/bencode"
	"btfetch/common/fault"

	jackpal "github.com/jackpal/bencode-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jackpalInfo struct {
	Length      int64  `bencode:"length"`
	Name        string `bencode:"name"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
}

func samplePieces(n int) []byte {
	buf := make([]byte, 0, n*sha1.Size)
	for i := 0; i < n; i++ {
		h := sha1.Sum([]byte{byte(i)})
		buf = append(buf, h[:]...)
	}
	return buf
}

func sampleTorrent(t *testing.T, info map[string]any) []byte {
	raw, err := bencode.BEncode(map[string]any{
		"announce": "http://127.0.0.1:6969/announce",
		"info":     info,
	})
	require.NoError(t, err)
	return raw
}

func sampleInfo() map[string]any {
	return map[string]any{
		"length":       92063,
		"name":         "sample.txt",
		"piece length": 32768,
		"pieces":       samplePieces(3),
	}
}

func TestLoad(t *testing.T) {
	tr, err := Load(sampleTorrent(t, sampleInfo()))
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "http://127.0.0.1:6969/announce", tr.Announce)
	assert.Equal(t, int64(92063), tr.Info.Length)
	assert.Equal(t, "sample.txt", tr.Info.Name)
	assert.Equal(t, int64(32768), tr.Info.PieceLength)
	assert.Equal(t, samplePieces(3), tr.Info.Pieces)
	assert.Equal(t, 3, tr.NumPieces())
}

func TestInfoHash_MatchesJackpal(t *testing.T) {
	tr, err := Load(sampleTorrent(t, sampleInfo()))
	require.NoError(t, err)

	buf := bytes.Buffer{}
	require.NoError(t, jackpal.Marshal(&buf, jackpalInfo{
		Length:      92063,
		Name:        "sample.txt",
		PieceLength: 32768,
		Pieces:      string(samplePieces(3)),
	}))
	hash, err := tr.InfoHash()
	if assert.NoError(t, err) {
		assert.Equal(t, sha1.Sum(buf.Bytes()), hash)
	}
}

func TestInfoHash_KeyOrderIndependent(t *testing.T) {
	pieces := string(samplePieces(1))
	sorted := "d8:announce3:url4:infod6:lengthi10e4:name1:a12:piece lengthi16e6:pieces20:" + pieces + "ee"
	shuffled := "d4:infod6:pieces20:" + pieces + "4:name1:a12:piece lengthi16e6:lengthi10ee8:announce3:urle"

	a, err := Load([]byte(sorted))
	require.NoError(t, err)
	b, err := Load([]byte(shuffled))
	require.NoError(t, err)

	ha, err := a.InfoHash()
	require.NoError(t, err)
	hb, err := b.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	again, err := a.InfoHash()
	require.NoError(t, err)
	assert.Equal(t, ha, again)
}

func TestInfoHash_CoversExtraKeys(t *testing.T) {
	plain, err := Load(sampleTorrent(t, sampleInfo()))
	require.NoError(t, err)
	info := sampleInfo()
	info["private"] = 1
	private, err := Load(sampleTorrent(t, info))
	require.NoError(t, err)

	h1, _ := plain.InfoHash()
	h2, _ := private.InfoHash()
	assert.NotEqual(t, h1, h2)
}

func TestPieceHashes(t *testing.T) {
	info := sampleInfo()
	info["pieces"] = samplePieces(2)
	info["length"] = 40000
	tr, err := Load(sampleTorrent(t, info))
	require.NoError(t, err)
	hashes := tr.PieceHashes()
	if assert.Len(t, hashes, 2) {
		assert.Equal(t, sha1.Sum([]byte{0}), hashes[0])
		assert.Equal(t, sha1.Sum([]byte{1}), hashes[1])
	}
}

func TestPieceSize(t *testing.T) {
	tr, err := Load(sampleTorrent(t, sampleInfo()))
	require.NoError(t, err)
	assert.Equal(t, 32768, tr.PieceSize(0))
	assert.Equal(t, 32768, tr.PieceSize(1))
	assert.Equal(t, 92063-2*32768, tr.PieceSize(2))
	assert.Equal(t, 0, tr.PieceSize(3))
}

func listOf(n int, v int) []any {
	ret := make([]any, n)
	for i := range ret {
		ret[i] = v
	}
	return ret
}

func TestLoad_Errors(t *testing.T) {
	withPieces := func(n int) map[string]any {
		info := sampleInfo()
		info["pieces"] = strings.Repeat("x", n)
		return info
	}
	without := func(key string) map[string]any {
		info := sampleInfo()
		delete(info, key)
		return info
	}
	with := func(key string, v any) map[string]any {
		info := sampleInfo()
		info[key] = v
		return info
	}
	cases := map[string][]byte{
		"pieces not multiple of 20": sampleTorrent(t, withPieces(30)),
		"missing length":            sampleTorrent(t, without("length")),
		"missing name":              sampleTorrent(t, without("name")),
		"missing piece length":      sampleTorrent(t, without("piece length")),
		"missing pieces":            sampleTorrent(t, without("pieces")),
		"length is string":          sampleTorrent(t, with("length", "92063")),
		"name is integer":           sampleTorrent(t, with("name", 7)),
		"pieces is integer":         sampleTorrent(t, with("pieces", 20)),
		"zero piece length":         sampleTorrent(t, with("piece length", 0)),
		"not a dictionary":          []byte("l4:spame"),
		"no info":                   []byte("d8:announce3:urle"),
		"info is a list":            []byte("d8:announce3:url4:infolee"),
		"missing announce":          []byte("d4:infod6:lengthi1e4:name1:a12:piece lengthi1e6:pieces0:ee"),
		"broken bencode":            []byte("d8:announce"),
		"pieces is a list":          sampleTorrent(t, with("pieces", listOf(20, 7))),
		"name is a list":            sampleTorrent(t, with("name", []any{"a"})),
		"upper case keys":           []byte("d8:ANNOUNCE3:url4:infod6:LENGTHi10e4:NAME1:a12:PIECE LENGTHi10e6:PIECES0:ee"),
		"upper case info key":       []byte("d8:announce3:url4:infod6:lengthi10e4:NAME1:a12:piece lengthi10e6:pieces0:ee"),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(raw)
			assert.ErrorIs(t, err, fault.ErrParse)
		})
	}
}

func TestLoadFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.torrent"))
	assert.ErrorIs(t, err, fault.ErrIO)

	path := filepath.Join(t.TempDir(), "sample.torrent")
	require.NoError(t, os.WriteFile(path, sampleTorrent(t, sampleInfo()), 0644))
	tr, err := LoadFile(path)
	if assert.NoError(t, err) {
		assert.Equal(t, "sample.txt", tr.Info.Name)
	}
}

func TestVerifyPiece(t *testing.T) {
	data := []byte("piece data")
	assert.NoError(t, VerifyPiece(data, sha1.Sum(data)))
	assert.ErrorIs(t, VerifyPiece(data, sha1.Sum([]byte("other"))), fault.ErrIntegrity)
}

package bittorrent

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"reflect"

	"btfetch/common/bencode"
	"btfetch/common/fault"

	"github.com/mitchellh/mapstructure"
)

var (
	stringType = reflect.TypeOf("")
	bytesType  = reflect.TypeOf([]byte(nil))
)

type TorrentInfo struct {
	Length      int64  `mapstructure:"length" json:"length"`
	Name        string `mapstructure:"name" json:"name"`
	PieceLength int64  `mapstructure:"piece length" json:"piece_length"`
	Pieces      []byte `mapstructure:"pieces" json:"-"`
}

// Torrent is immutable once loaded.
type Torrent struct {
	Announce string      `mapstructure:"announce" json:"announce"`
	Info     TorrentInfo `mapstructure:"info" json:"info"`

	// raw info dictionary, every key included, for the info hash
	info *bencode.Dict
}

func LoadFile(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, err, "read torrent %s", path)
	}
	return Load(data)
}

func Load(data []byte) (*Torrent, error) {
	v, err := bencode.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	root, ok := v.(*bencode.Dict)
	if !ok {
		return nil, fault.Parse("torrent is a %s, not a dictionary", v.Kind())
	}
	info, ok := bencode.GetDict(root, "info")
	if !ok {
		return nil, fault.Parse("torrent has no info dictionary")
	}

	t := &Torrent{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnset: true,
		Result:     t,
		// bencode keys are raw bytes; "NAME" is not "name"
		MatchName: func(mapKey, fieldName string) bool {
			return mapKey == fieldName
		},
		DecodeHook: func(src reflect.Type, target reflect.Type, from interface{}) (interface{}, error) {
			switch target {
			case stringType:
				if v, ok := from.([]byte); ok {
					return string(v), nil
				}
			case bytesType:
				if _, ok := from.([]byte); !ok {
					return nil, fault.Parse("expected byte string, got %s", src)
				}
			}
			return from, nil
		},
	})
	if err != nil {
		return nil, fault.Wrap(fault.ErrParse, err, "")
	}
	err = decoder.Decode(bencode.ToAny(root))
	if err != nil {
		return nil, fault.Wrap(fault.ErrParse, err, "torrent fields")
	}
	t.info = info

	if len(t.Info.Pieces)%sha1.Size != 0 {
		return nil, fault.Parse("pieces length %d is not a multiple of %d", len(t.Info.Pieces), sha1.Size)
	}
	if t.Info.PieceLength <= 0 {
		return nil, fault.Parse("piece length must be positive, got %d", t.Info.PieceLength)
	}
	if t.Info.Length < 0 {
		return nil, fault.Parse("length must not be negative, got %d", t.Info.Length)
	}
	return t, nil
}

// InfoHash is recomputed on every call from the canonical encoding of the
// info dictionary.
func (t *Torrent) InfoHash() ([20]byte, error) {
	buf, err := bencode.Encode(t.info)
	if err != nil {
		return [20]byte{}, fault.Wrap(fault.ErrParse, err, "encode info")
	}
	return sha1.Sum(buf), nil
}

func (t *Torrent) InfoHashHex() (string, error) {
	h, err := t.InfoHash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h[:]), nil
}

func (t *Torrent) PieceHashes() [][20]byte {
	n := t.NumPieces()
	ret := make([][20]byte, n)
	for i := 0; i < n; i++ {
		copy(ret[i][:], t.Info.Pieces[i*sha1.Size:(i+1)*sha1.Size])
	}
	return ret
}

func (t *Torrent) NumPieces() int {
	return len(t.Info.Pieces) / sha1.Size
}

// PieceSize is the byte length of piece index. Every piece is PieceLength
// long except possibly the last one.
func (t *Torrent) PieceSize(index int) int {
	begin := int64(index) * t.Info.PieceLength
	end := begin + t.Info.PieceLength
	if end > t.Info.Length {
		end = t.Info.Length
	}
	if end < begin {
		return 0
	}
	return int(end - begin)
}

func VerifyPiece(data []byte, expected [20]byte) error {
	actual := sha1.Sum(data)
	if !bytes.Equal(actual[:], expected[:]) {
		return fault.Integrity("piece hash %x, expected %x", actual, expected)
	}
	return nil
}

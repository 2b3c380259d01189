package logic

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"btfetch/btfetch/internal/svc"
	"btfetch/common/bittorrent"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type InfoResult struct {
	Announce    string
	Name        string
	Length      int64
	InfoHash    string
	PieceLength int64
	PieceHashes []string
}

func (r *InfoResult) String() string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "Tracker URL: %s\n", r.Announce)
	fmt.Fprintf(&sb, "Length: %d\n", r.Length)
	fmt.Fprintf(&sb, "Info Hash: %s\n", r.InfoHash)
	fmt.Fprintf(&sb, "Piece Length: %d\n", r.PieceLength)
	sb.WriteString("Piece Hashes:\n")
	for _, h := range r.PieceHashes {
		sb.WriteString(h)
		sb.WriteByte('\n')
	}
	return sb.String()
}

type InfoLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewInfoLogic(ctx context.Context, svcCtx *svc.ServiceContext) *InfoLogic {
	return &InfoLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

func (l *InfoLogic) Info(torrentPath string) (*InfoResult, error) {
	t, err := bittorrent.LoadFile(torrentPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	infoHash, err := t.InfoHashHex()
	if err != nil {
		return nil, errors.Trace(err)
	}
	ret := &InfoResult{
		Announce:    t.Announce,
		Name:        t.Info.Name,
		Length:      t.Info.Length,
		InfoHash:    infoHash,
		PieceLength: t.Info.PieceLength,
	}
	for _, h := range t.PieceHashes() {
		ret.PieceHashes = append(ret.PieceHashes, hex.EncodeToString(h[:]))
	}
	return ret, nil
}

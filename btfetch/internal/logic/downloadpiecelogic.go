package logic

import (
	"context"
	"os"

	"btfetch/btfetch/internal/svc"
	"btfetch/common/bittorrent"
	"btfetch/common/fault"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type DownloadPieceLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewDownloadPieceLogic(ctx context.Context, svcCtx *svc.ServiceContext) *DownloadPieceLogic {
	return &DownloadPieceLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// DownloadPiece fetches and verifies one piece, then writes it to out. The
// file only appears once the data is complete.
func (l *DownloadPieceLogic) DownloadPiece(torrentPath string, index int, out string) error {
	t, err := bittorrent.LoadFile(torrentPath)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := l.svcCtx.Downloader.Download(l.ctx, t, index)
	if err != nil {
		return errors.Annotatef(err, "piece %d", index)
	}
	tmpPath := out + ".tmp"
	err = os.WriteFile(tmpPath, data, 0o644)
	if err != nil {
		return fault.Wrap(fault.ErrIO, err, "write %s", tmpPath)
	}
	err = os.Rename(tmpPath, out)
	if err != nil {
		_ = os.Remove(tmpPath)
		return fault.Wrap(fault.ErrIO, err, "rename %s", tmpPath)
	}
	l.Infof("Piece %d downloaded to %s", index, out)
	return nil
}

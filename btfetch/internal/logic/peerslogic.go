package logic

import (
	"context"

	"btfetch/btfetch/internal/svc"
	"btfetch/common/bittorrent"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type PeersLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewPeersLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PeersLogic {
	return &PeersLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// Peers returns ip:port for every peer the tracker announces.
func (l *PeersLogic) Peers(torrentPath string) ([]string, error) {
	t, err := bittorrent.LoadFile(torrentPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	peers, err := l.svcCtx.Downloader.Peers(l.ctx, t)
	if err != nil {
		return nil, errors.Trace(err)
	}
	ret := make([]string, 0, len(peers))
	for _, p := range peers {
		ret = append(ret, p.String())
	}
	return ret, nil
}

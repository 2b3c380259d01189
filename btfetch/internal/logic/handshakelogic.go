package logic

import (
	"context"
	"encoding/hex"

	"btfetch/btfetch/internal/svc"
	"btfetch/common/bittorrent"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type HandshakeLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewHandshakeLogic(ctx context.Context, svcCtx *svc.ServiceContext) *HandshakeLogic {
	return &HandshakeLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// Handshake returns the hex peer id that addr answers with.
func (l *HandshakeLogic) Handshake(torrentPath, addr string) (string, error) {
	t, err := bittorrent.LoadFile(torrentPath)
	if err != nil {
		return "", errors.Trace(err)
	}
	peerID, err := l.svcCtx.Downloader.Handshake(l.ctx, t, addr)
	if err != nil {
		return "", errors.Annotatef(err, "handshake with %s", addr)
	}
	return hex.EncodeToString(peerID[:]), nil
}

package logic

import (
	"context"
	"encoding/json"

	"btfetch/btfetch/internal/svc"
	"btfetch/common/bencode"
	"btfetch/common/fault"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

type DecodeLogic struct {
	ctx    context.Context
	svcCtx *svc.ServiceContext
	logx.Logger
}

func NewDecodeLogic(ctx context.Context, svcCtx *svc.ServiceContext) *DecodeLogic {
	return &DecodeLogic{
		ctx:    ctx,
		svcCtx: svcCtx,
		Logger: logx.WithContext(ctx),
	}
}

// Decode renders the first bencoded value of encoded as JSON, byte strings
// shown as text.
func (l *DecodeLogic) Decode(encoded string) (string, error) {
	v, rest, err := bencode.Decode([]byte(encoded))
	if err != nil {
		return "", errors.Trace(err)
	}
	if len(rest) > 0 {
		l.Infof("Ignoring %d bytes after the value", len(rest))
	}
	raw, err := json.Marshal(toJSON(v))
	if err != nil {
		return "", fault.Wrap(fault.ErrParse, err, "render json")
	}
	return string(raw), nil
}

func toJSON(v bencode.Value) any {
	switch x := v.(type) {
	case bencode.Int:
		return int64(x)
	case bencode.String:
		return string(x)
	case bencode.List:
		ret := make([]any, 0, len(x))
		for _, item := range x {
			ret = append(ret, toJSON(item))
		}
		return ret
	case *bencode.Dict:
		ret := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			item, _ := x.Get(k)
			ret[k] = toJSON(item)
		}
		return ret
	default:
		return nil
	}
}

package tracker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"btfetch/common/bencode"
	"btfetch/common/fault"

	"github.com/juju/errors"
	"github.com/zeromicro/go-zero/core/logx"
)

const maxResponseSize = 1 << 20

var _ Tracker = (*HTTPTracker)(nil)

type HTTPTracker struct {
	announce *url.URL
	client   *http.Client
}

func NewHTTPTracker(announce *url.URL, client *http.Client) *HTTPTracker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTracker{
		announce: announce,
		client:   client,
	}
}

// Announce implements Tracker.
func (t *HTTPTracker) Announce(ctx context.Context, req *AnnounceRequest) (*AnnounceResponse, error) {
	target := t.buildURL(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fault.Wrap(fault.ErrParse, err, "announce request")
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, errors.Trace(err)
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, fault.Wrap(fault.ErrTimeout, err, "announce to %s", t.announce.Host)
		}
		return nil, fault.Wrap(fault.ErrNetwork, err, "announce to %s", t.announce.Host)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.Network("tracker %s answered %s", t.announce.Host, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fault.Wrap(fault.ErrNetwork, err, "read tracker response")
	}
	logx.Debugf("Tracker %s answered %d bytes", t.announce.Host, len(body))
	ret, err := ParseHTTPResponse(body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ret, nil
}

func (t *HTTPTracker) buildURL(req *AnnounceRequest) string {
	params := url.Values{}
	params.Set("port", strconv.Itoa(int(req.Port)))
	params.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	params.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	params.Set("left", strconv.FormatInt(req.Left, 10))
	if req.Compact {
		params.Set("compact", "1")
	}
	// url.Values would turn 0x20 into '+'; raw hashes are escaped by hand
	query := "info_hash=" + EscapeBytes(req.InfoHash[:]) +
		"&peer_id=" + EscapeBytes(req.PeerID[:]) +
		"&" + params.Encode()

	u := *t.announce
	if len(u.RawQuery) > 0 {
		u.RawQuery = u.RawQuery + "&" + query
	} else {
		u.RawQuery = query
	}
	return u.String()
}

// EscapeBytes percent-encodes every byte except RFC 3986 unreserved
// characters.
func EscapeBytes(raw []byte) string {
	var sb strings.Builder
	for _, b := range raw {
		switch {
		case b == '.' || b == '-' || b == '_' || b == '~',
			'0' <= b && b <= '9',
			'a' <= b && b <= 'z',
			'A' <= b && b <= 'Z':
			sb.WriteByte(b)
		default:
			sb.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return sb.String()
}

func ParseHTTPResponse(body []byte) (*AnnounceResponse, error) {
	v, err := bencode.Unmarshal(body)
	if err != nil {
		return nil, errors.Trace(err)
	}
	dict, ok := v.(*bencode.Dict)
	if !ok {
		return nil, fault.Parse("tracker response is a %s, not a dictionary", v.Kind())
	}
	if reason, ok := bencode.GetString(dict, "failure reason"); ok {
		return nil, fault.Network("tracker failure: %s", reason)
	}
	if warning, ok := bencode.GetString(dict, "warning message"); ok {
		logx.Infof("Tracker warning: %s", warning)
	}
	interval, ok := bencode.GetInt(dict, "interval")
	if !ok {
		return nil, fault.Parse("tracker response has no integer interval")
	}
	ret := &AnnounceResponse{Interval: interval}
	ret.Complete, _ = bencode.GetInt(dict, "complete")
	ret.Incomplete, _ = bencode.GetInt(dict, "incomplete")

	switch peers := bencode.GetByPath(dict, "peers").(type) {
	case bencode.String:
		ret.Peers, err = ParseCompactPeers(peers)
		if err != nil {
			return nil, err
		}
	case bencode.List:
		ret.Peers, err = parseDictPeers(peers)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fault.Parse("tracker response has no peers")
	}
	return ret, nil
}

func parseDictPeers(list bencode.List) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for i, item := range list {
		d, ok := item.(*bencode.Dict)
		if !ok {
			return nil, fault.Parse("peer %d is a %s", i, item.Kind())
		}
		host, ok1 := bencode.GetString(d, "ip")
		port, ok2 := bencode.GetInt(d, "port")
		if !ok1 || !ok2 || port < 0 || port > 0xffff {
			return nil, fault.Parse("peer %d has no valid ip/port", i)
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fault.Parse("peer %d has invalid ip %q", i, host)
		}
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		peers = append(peers, Peer{IP: ip, Port: uint16(port)})
	}
	return peers, nil
}

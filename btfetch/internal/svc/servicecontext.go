package svc

import (
	"net/http"

	"btfetch/btfetch/internal/config"

	"github.com/juju/errors"
	"golang.org/x/net/proxy"
)

type ServiceContext struct {
	Config     config.Config
	HTTPClient *http.Client
	// Dialer is nil when peers are dialed directly.
	Dialer     proxy.Dialer
	Downloader *Downloader
}

func NewServiceContext(c config.Config) (*ServiceContext, error) {
	err := c.Validate()
	if err != nil {
		return nil, errors.Trace(err)
	}
	svcCtx := &ServiceContext{
		Config: c,
		HTTPClient: &http.Client{
			Timeout: c.TrackerTimeout,
		},
	}
	if len(c.Socks5Proxy) > 0 {
		svcCtx.Dialer, err = proxy.SOCKS5("tcp", c.Socks5Proxy, nil, nil)
		if err != nil {
			return nil, errors.Annotatef(err, "socks5 proxy %s", c.Socks5Proxy)
		}
	}
	svcCtx.Downloader = NewDownloader(svcCtx)
	return svcCtx, nil
}

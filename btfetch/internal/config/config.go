package config

import (
	"time"

	"btfetch/common/fault"

	"github.com/zeromicro/go-zero/core/proc"
	"github.com/zeromicro/go-zero/core/service"
)

type Config struct {
	service.ServiceConf
	PeerID           string        `json:",default=00112233445566778899"`
	Port             int           `json:",default=6881"`
	PeerTimeout      time.Duration `json:",default=10s"`
	TrackerTimeout   time.Duration `json:",default=15s"`
	Socks5Proxy      string        `json:",optional"`
	DialRateLimit    int           `json:",default=10"`
	BadPeerTTL       time.Duration `json:",default=5m"`
	MaxBadPeers      int           `json:",default=1024"`
	MaxPeerAttempts  int           `json:",default=0"`
	ForceQuitSeconds int           `json:",default=5"`
}

func (c *Config) Validate() error {
	if len(c.PeerID) != 20 {
		return fault.Parse("PeerID must be 20 bytes, got %d", len(c.PeerID))
	}
	if c.Port <= 0 || c.Port > 0xffff {
		return fault.Parse("Port %d out of range", c.Port)
	}
	if c.DialRateLimit <= 0 {
		return fault.Parse("DialRateLimit must be positive, got %d", c.DialRateLimit)
	}
	if c.MaxPeerAttempts < 0 {
		return fault.Parse("MaxPeerAttempts must not be negative, got %d", c.MaxPeerAttempts)
	}
	return nil
}

func (c *Config) PeerIDBytes() [20]byte {
	var id [20]byte
	copy(id[:], c.PeerID)
	return id
}

func (c *Config) MustSetUp() {
	c.ServiceConf.MustSetUp()
	proc.SetTimeToForceQuit(time.Duration(c.ForceQuitSeconds) * time.Second)
}

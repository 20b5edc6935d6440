package config

import "time"

type ClientConfig interface {
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetMaxTransportRetries() int
	GetRateLimit() float64
	GetRateBurst() int
	GetProactiveRefreshSkew() time.Duration
}

type Client struct {
	src *source
}

var _ ClientConfig = Client{}

// GetRequestTimeout bounds a single HTTP round trip
func (c Client) GetRequestTimeout() time.Duration {
	return c.src.duration("OPPORTUCI_REQUEST_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds the refresh call every queued request waits on
func (c Client) GetRefreshTimeout() time.Duration {
	return c.src.duration("OPPORTUCI_REFRESH_TIMEOUT", 30*time.Second)
}

// GetMaxTransportRetries is the retry budget for idempotent requests that got no response.
// Zero disables retries.
func (c Client) GetMaxTransportRetries() int {
	return c.src.integer("OPPORTUCI_MAX_TRANSPORT_RETRIES", 0)
}

// GetRateLimit is the outgoing request rate in requests per second. Zero disables limiting.
func (c Client) GetRateLimit() float64 {
	return c.src.float("OPPORTUCI_RATE_LIMIT", 0)
}

func (c Client) GetRateBurst() int {
	return c.src.integer("OPPORTUCI_RATE_BURST", 5)
}

// GetProactiveRefreshSkew refreshes tokens this long before their exp claim. Zero disables it.
func (c Client) GetProactiveRefreshSkew() time.Duration {
	return c.src.duration("OPPORTUCI_PROACTIVE_REFRESH_SKEW", 0)
}

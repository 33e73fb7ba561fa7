package semantic

import "time"

const (
	defaultTopK    = 3
	maxTopK        = 10
	defaultTimeout = 10 * time.Second
)

type searchConfig struct {
	topK    int32
	filter  map[string]string
	timeout time.Duration
}

// SearchOption adjusts a single Query call.
type SearchOption func(*searchConfig)

// WithTopK sets how many records to return. Values outside [1, 10] are
// clamped rather than rejected.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		switch {
		case k < 1:
			c.topK = 1
		case k > maxTopK:
			c.topK = maxTopK
		default:
			c.topK = int32(k)
		}
	}
}

// WithFilter restricts results to chunks whose metadata contains the
// given key/value pair. Repeated calls accumulate.
func WithFilter(key, value string) SearchOption {
	return func(c *searchConfig) {
		if c.filter == nil {
			c.filter = make(map[string]string, 2)
		}
		c.filter[key] = value
	}
}

// WithTimeout bounds the embed-plus-search round trip.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) searchConfig {
	cfg := searchConfig{topK: defaultTopK, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

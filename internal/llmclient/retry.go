package llmclient

import (
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryPolicy bounds provider retries. Zero MaxRetries means retry until
// MaxElapsed or the context ends.
type retryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxRetries      uint64
}

var defaultRetryPolicy = retryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsed:      time.Minute,
	MaxRetries:      4,
}

func (p retryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed
	if p.MaxRetries > 0 {
		return backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return b
}

// isTransientMessage classifies provider errors that only expose text.
func isTransientMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"429", "500", "502", "503", "504", "rate limit", "unavailable", "timeout", "connection reset", "eof"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

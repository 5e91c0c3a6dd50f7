package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// DefaultOpenTimeout bounds how long Open keeps retrying.
const DefaultOpenTimeout = 2 * time.Minute

// Open creates a UDPTransport, retrying with exponential backoff while the
// network is not ready yet (no interface up, address not assigned). It gives
// up after timeout or when ctx is done.
func Open(ctx context.Context, log *log.Entry, cfg Config, timeout time.Duration) (*UDPTransport, error) {
	if timeout <= 0 {
		timeout = DefaultOpenTimeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = timeout

	var t *UDPTransport
	err := backoff.RetryNotify(func() error {
		var err error
		t, err = NewUDPTransport(ctx, log, cfg)
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.WithError(err).Warnf("transport not ready, retrying in %s", next.Round(time.Millisecond))
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

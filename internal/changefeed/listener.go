package changefeed

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Listener holds a dedicated postgres connection that LISTENs on Channel and
// pushes every notification into a Feed.
type Listener struct {
	dsn  string
	feed *Feed
}

func NewListener(dsn string, feed *Feed) *Listener {
	if feed == nil {
		panic("feed cannot be nil for Listener")
	}
	return &Listener{dsn: dsn, feed: feed}
}

// Run blocks until ctx ends, reconnecting with exponential backoff.
func (l *Listener) Run(ctx context.Context) {
	log := logrus.WithField("component", "changefeed")
	backoff := minBackoff
	for {
		err := l.listen(ctx, func() { backoff = minBackoff })
		if ctx.Err() != nil {
			log.Info("Change feed listener stopped")
			return
		}
		log.WithError(err).WithField("retry_in", backoff.String()).Warn("Change feed connection lost")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff)
	}
}

func (l *Listener) listen(ctx context.Context, connected func()) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	connected()
	logrus.WithField("channel", Channel).Info("Change feed listening")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := Decode(n.Payload)
		if err != nil {
			logrus.WithError(err).Warn("Change feed: dropping notification")
			continue
		}
		l.feed.Publish(c)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

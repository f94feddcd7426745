package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// CancelChannel is the Postgres notification channel carrying cancelled session ids
const CancelChannel = "session_cancelled"

// Canceller cancels a session by id
type Canceller interface {
	Cancel(ctx context.Context, sessionID string) error
}

// CancelListener forwards cancellations issued by any API instance to the
// local tracker, so a run is stopped wherever it executes
type CancelListener struct {
	dsn       string
	canceller Canceller
	listener  *pq.Listener
}

// NewCancelListener creates a listener for the given Postgres DSN
func NewCancelListener(dsn string, canceller Canceller) *CancelListener {
	return &CancelListener{dsn: dsn, canceller: canceller}
}

// Start subscribes to CancelChannel and handles notifications until ctx ends
func (l *CancelListener) Start(ctx context.Context) error {
	l.listener = pq.NewListener(l.dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warnf("CancelListener: connection event %d: %v", ev, err)
		}
	})
	if err := l.listener.Listen(CancelChannel); err != nil {
		l.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", CancelChannel, err)
	}

	log.Infof("CancelListener: Listening on %s", CancelChannel)
	go l.loop(ctx)
	return nil
}

func (l *CancelListener) loop(ctx context.Context) {
	defer l.listener.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.listener.Notify:
			// nil after a reconnect; notifications sent meanwhile are lost
			if n == nil {
				continue
			}
			l.handle(ctx, n.Extra)
		case <-time.After(90 * time.Second):
			go func() {
				if err := l.listener.Ping(); err != nil {
					log.Warnf("CancelListener: ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *CancelListener) handle(ctx context.Context, payload string) {
	sessionID := strings.TrimSpace(payload)
	if sessionID == "" {
		return
	}
	err := l.canceller.Cancel(ctx, sessionID)
	switch {
	case err == nil:
		log.Debugf("CancelListener: Cancelled session %s", sessionID)
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrInvalidTransition):
		log.Debugf("CancelListener: Ignoring cancellation of %s: %v", sessionID, err)
	default:
		log.Errorf("CancelListener: Failed to cancel session %s: %v", sessionID, err)
	}
}

// NotifyCancel broadcasts a cancellation to every listening instance
func NotifyCancel(ctx context.Context, db *gorm.DB, sessionID string) error {
	if err := db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", CancelChannel, sessionID).Error; err != nil {
		return fmt.Errorf("failed to notify cancellation: %w", err)
	}
	return nil
}

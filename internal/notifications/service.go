package notifications

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRecentLimit is how many toasts are kept for clients that poll.
const DefaultRecentLimit = 20

// Notifier accepts toasts raised by the shell.
type Notifier interface {
	Notify(kind ToastType, message string) Toast
}

// Broadcaster delivers websocket messages to every connected client.
type Broadcaster interface {
	Broadcast(message WebSocketMessage) error
}

// Service records toasts and fans them out to connected clients.
type Service struct {
	broadcaster Broadcaster
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	recent []Toast
	limit  int
}

// NewService creates a toast service. broadcaster may be nil, in which case
// toasts are only kept for polling.
func NewService(broadcaster Broadcaster, logger *zap.Logger) *Service {
	return &Service{
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
		recent:      make([]Toast, 0, DefaultRecentLimit),
		limit:       DefaultRecentLimit,
	}
}

// Notify creates a toast and pushes it to clients.
func (s *Service) Notify(kind ToastType, message string) Toast {
	toast := Toast{
		ID:        uuid.New(),
		Type:      kind,
		Message:   message,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	if len(s.recent) >= s.limit {
		s.recent = append(s.recent[:0:0], s.recent[1:]...)
	}
	s.recent = append(s.recent, toast)
	s.mu.Unlock()

	if s.broadcaster != nil {
		if err := s.broadcaster.Broadcast(ToastMessage(toast)); err != nil {
			s.logger.Warn("Failed to broadcast toast", zap.String("message", message), zap.Error(err))
		}
	}
	return toast
}

// Recent returns the retained toasts, oldest first.
func (s *Service) Recent() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Toast{}, s.recent...)
}

package marketplace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/notifications"
)

// Refresher periodically re-fetches the contract lists.
type Refresher struct {
	cron        *cron.Cron
	service     *Service
	broadcaster notifications.Broadcaster
	logger      *zap.Logger
	timeout     time.Duration
	mu          sync.Mutex
	running     bool
}

// NewRefresher schedules refreshes at spec, a six-field cron expression
// (seconds first). broadcaster may be nil.
func NewRefresher(service *Service, spec string, timeout time.Duration, broadcaster notifications.Broadcaster, logger *zap.Logger) (*Refresher, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Refresher{
		cron:        cron.New(cron.WithSeconds()),
		service:     service,
		broadcaster: broadcaster,
		logger:      logger,
		timeout:     timeout,
	}
	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start starts the refresher
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.logger.Info("Starting contract refresher")
	r.cron.Start()
}

// Stop stops the refresher and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	r.logger.Info("Stopping contract refresher")
	<-r.cron.Stop().Done()
}

// RunOnce refreshes the lists now. Failures keep the previous lists.
func (r *Refresher) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.service.Refresh(ctx); err != nil {
		r.logger.Warn("Scheduled refresh failed", zap.Error(err))
		return
	}

	if r.broadcaster == nil {
		return
	}
	st := r.service.Status()
	msg := notifications.WebSocketMessage{
		Type: notifications.WSMessageTypeRefresh,
		Data: map[string]interface{}{
			"contracts": st.Contracts,
			"credits":   st.Credits,
		},
		Timestamp: st.LastRefresh,
		Channel:   "broadcast",
		Target:    "all",
	}
	if err := r.broadcaster.Broadcast(msg); err != nil {
		r.logger.Debug("Failed to announce refresh", zap.Error(err))
	}
}

package notifications

import (
	"time"

	"github.com/google/uuid"
)

// ToastType is the visual severity of a toast.
type ToastType string

const (
	ToastSuccess ToastType = "success"
	ToastDanger  ToastType = "danger"
	ToastInfo    ToastType = "info"
)

// Toast is a transient user notification. Dismissal happens on the client.
type Toast struct {
	ID        uuid.UUID `json:"id"`
	Type      ToastType `json:"type"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// WebSocketMessage represents WebSocket message format
type WebSocketMessage struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Channel   string                 `json:"channel,omitempty"`
	Target    string                 `json:"target,omitempty"`
}

// WebSocket message types
const (
	WSMessageTypeToast    = "toast"
	WSMessageTypeStatus   = "status"
	WSMessageTypePresence = "presence"
	WSMessageTypeRefresh  = "refresh"
)

// ToastMessage wraps a toast for websocket delivery.
func ToastMessage(t Toast) WebSocketMessage {
	return WebSocketMessage{
		Type: WSMessageTypeToast,
		Data: map[string]interface{}{
			"id":      t.ID.String(),
			"type":    string(t.Type),
			"message": t.Message,
		},
		Timestamp: t.CreatedAt,
		Channel:   "broadcast",
		Target:    "all",
	}
}

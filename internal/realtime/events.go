package realtime

import (
	"encoding/json"

	"github.com/servineo/servineo-api/internal/apperr"
)

// Client event types accepted on the websocket. Anything else gets an error
// ack rather than a silent drop.
const (
	ClientEventJoin           = "join"
	ClientEventModeratorJoin  = "moderator_join"
	ClientEventChatMessage    = "chat_message"
	ClientEventSupportMessage = "support_message"
)

// Server event types pushed to connected clients.
const (
	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventNewNotification = "new_notification"
	EventNewSupportChat  = "new_support_chat"
	EventSupportMessage  = "support_message"
	EventError           = "error"
)

// ClientEvent is the inbound envelope: a type tag plus a type-specific
// payload decoded by the dispatcher.
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is the outbound envelope written to websocket clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ErrorData carries a machine-readable code plus a client-safe message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent maps a service error into an error ack using the shared
// error taxonomy, so websocket and REST clients see the same codes.
func NewErrorEvent(err error) Event {
	return Event{
		Type: EventError,
		Data: ErrorData{
			Code:    apperr.Code(err),
			Message: apperr.Message(err),
		},
	}
}

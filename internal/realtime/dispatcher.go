package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/servineo/servineo-api/internal/apperr"
	"github.com/servineo/servineo-api/internal/dto"
	"github.com/servineo/servineo-api/internal/models"
	"github.com/servineo/servineo-api/internal/observability"
	"github.com/servineo/servineo-api/internal/service"
)

// Bridge event kinds carried between nodes.
const (
	bridgeKindConversation   = "conversation_message"
	bridgeKindSupportMessage = "support_message"
	bridgeKindSupportChat    = "support_chat"
)

// bridgeEvent is the cross-node envelope published to Redis and NATS. The
// source node id lets consumers skip their own publications.
type bridgeEvent struct {
	Source         string                      `json:"source"`
	Kind           string                      `json:"kind"`
	Message        *dto.MessageResponse        `json:"message,omitempty"`
	RecipientID    uint                        `json:"recipient_id,omitempty"`
	Notification   *dto.NotificationResponse   `json:"notification,omitempty"`
	Chat           *dto.SupportChatResponse    `json:"chat,omitempty"`
	SupportMessage *dto.SupportMessageResponse `json:"support_message,omitempty"`
	SentAt         time.Time                   `json:"sent_at"`
}

// ConnectionOptions wraps identity metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	UserID        uint
	Role          string
	CorrelationID string
	Context       context.Context
}

// Dispatcher owns the websocket protocol: it reads client events, persists
// them through the services, fans results out via the registry, and bridges
// delivered events to peer nodes over Redis pub/sub and NATS.
type Dispatcher struct {
	registry      *Registry
	conversations service.ConversationService
	support       service.SupportService
	notifications service.NotificationService
	redis         *redis.Client
	redisChannel  string
	nats          *nats.Conn
	natsSubject   string
	logger        zerolog.Logger
	nodeID        string
}

// NewDispatcher wires the realtime dispatcher. Redis and NATS are optional;
// with neither, fan-out stays node-local.
func NewDispatcher(
	registry *Registry,
	conversations service.ConversationService,
	support service.SupportService,
	notifications service.NotificationService,
	redisClient *redis.Client,
	channelBase string,
	natsConn *nats.Conn,
	logger zerolog.Logger,
) *Dispatcher {
	redisChannel := ""
	natsSubject := ""
	if channelBase != "" {
		redisChannel = channelBase + ":realtime"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".realtime"
	}

	return &Dispatcher{
		registry:      registry,
		conversations: conversations,
		support:       support,
		notifications: notifications,
		redis:         redisClient,
		redisChannel:  redisChannel,
		nats:          natsConn,
		natsSubject:   natsSubject,
		logger:        logger.With().Str("component", "realtime_dispatcher").Logger(),
		nodeID:        uuid.NewString(),
	}
}

// Start launches the bridge consumers. Safe to call with neither backend
// configured.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.redis != nil && d.redisChannel != "" {
		go d.consumeRedis(ctx)
	}
	if d.nats != nil && d.natsSubject != "" {
		go d.consumeNATS(ctx)
	}
}

// ServeConnection runs the reader loop for one websocket connection. It
// blocks until the connection closes and always unregisters on the way out.
func (d *Dispatcher) ServeConnection(conn Conn, opts ConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	session := d.registry.NewSession(conn, opts.UserID, opts.Role, opts.CorrelationID)
	defer session.Close()

	for {
		var event ClientEvent
		if err := conn.ReadJSON(&event); err != nil {
			d.logger.Debug().Err(err).Uint("user_id", opts.UserID).Msg("realtime read loop ended")
			return
		}

		d.handleClientEvent(baseCtx, session, event)
	}
}

// handleClientEvent processes one inbound event to completion before the
// reader continues, which keeps per-connection ordering intact.
func (d *Dispatcher) handleClientEvent(ctx context.Context, session *Session, event ClientEvent) {
	switch event.Type {
	case ClientEventJoin:
		// Registration happened at upgrade time; the explicit join is a
		// no-op kept for protocol compatibility.

	case ClientEventModeratorJoin:
		if session.Role() != models.RoleModerator && session.Role() != models.RoleAdmin {
			session.enqueue(NewErrorEvent(apperr.Authorization("moderator channel requires a staff role")))
		}

	case ClientEventChatMessage:
		var payload dto.MessageSendRequest
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			session.enqueue(NewErrorEvent(apperr.Validation("malformed chat_message payload")))
			return
		}

		message, err := d.conversations.SendMessage(ctx, session.UserID(), payload)
		if err != nil {
			session.enqueue(NewErrorEvent(err))
			return
		}

		d.DeliverConversationMessage(ctx, message)

	case ClientEventSupportMessage:
		var payload dto.SupportMessageSendRequest
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			session.enqueue(NewErrorEvent(apperr.Validation("malformed support_message payload")))
			return
		}

		chat, message, err := d.support.SendMessage(ctx, session.UserID(), session.Role(), payload)
		if err != nil {
			session.enqueue(NewErrorEvent(err))
			return
		}

		d.DeliverSupportMessage(ctx, chat, message)

	default:
		session.enqueue(NewErrorEvent(apperr.Validation("unknown event type %q", event.Type)))
	}
}

// DeliverConversationMessage acks the sender on every connection they hold,
// pushes the persisted message to the counterpart, records a notification for
// them, and bridges the event to peer nodes. Offline recipients are fine:
// history and notifications are durable.
func (d *Dispatcher) DeliverConversationMessage(ctx context.Context, message dto.MessageResponse) {
	d.registry.PushToUser(message.SenderID, Event{Type: EventMessageSent, Data: message})

	participants, err := d.conversations.Participants(ctx, message.ConversationID)
	if err != nil {
		d.logger.Warn().Err(err).Uint("conversation_id", message.ConversationID).Msg("failed to resolve participants for fan-out")
		return
	}

	recipient := participants.Other(message.SenderID)
	d.registry.PushToUser(recipient, Event{Type: EventNewMessage, Data: message})

	notification, err := d.notifications.Publish(ctx, dto.NotificationCreateRequest{
		UserID:  recipient,
		Type:    "new_message",
		Message: fmt.Sprintf("New message in conversation %d", message.ConversationID),
	})
	if err != nil {
		d.logger.Warn().Err(err).Uint("recipient_id", recipient).Msg("failed to persist notification")
	} else {
		d.registry.PushToUser(recipient, Event{Type: EventNewNotification, Data: notification})
	}

	d.publish(ctx, bridgeEvent{
		Kind:         bridgeKindConversation,
		Message:      &message,
		RecipientID:  recipient,
		Notification: notificationRef(notification, err),
	})
}

// DeliverSupportMessage acks the sender on every connection they hold, then
// pushes the message to everyone attached to the chat: the requesting user,
// the assigned moderator, and an intervening admin.
func (d *Dispatcher) DeliverSupportMessage(ctx context.Context, chat dto.SupportChatResponse, message dto.SupportMessageResponse) {
	d.ackSupportSender(message)
	d.deliverSupportMessageLocal(chat, message)
	d.publish(ctx, bridgeEvent{
		Kind:           bridgeKindSupportMessage,
		Chat:           &chat,
		SupportMessage: &message,
	})
}

// AnnounceSupportChat broadcasts a chat needing attention to every connected
// staff session, locally and across nodes.
func (d *Dispatcher) AnnounceSupportChat(ctx context.Context, chat dto.SupportChatResponse) {
	d.registry.BroadcastToModerators(Event{Type: EventNewSupportChat, Data: chat})
	d.publish(ctx, bridgeEvent{
		Kind: bridgeKindSupportChat,
		Chat: &chat,
	})
}

// ackSupportSender confirms delivery to every connection the sender holds,
// so their other tabs stay in sync. System notices carry no sender to ack.
func (d *Dispatcher) ackSupportSender(message dto.SupportMessageResponse) {
	if message.SenderID == nil || message.SenderType == models.SenderTypeSystem {
		return
	}

	event := Event{Type: EventMessageSent, Data: message}
	switch message.SenderType {
	case models.SenderTypeModerator, models.SenderTypeAdmin:
		d.registry.PushToModerator(*message.SenderID, event)
	default:
		d.registry.PushToUser(*message.SenderID, event)
	}
}

func (d *Dispatcher) deliverSupportMessageLocal(chat dto.SupportChatResponse, message dto.SupportMessageResponse) {
	event := Event{Type: EventSupportMessage, Data: message}

	d.registry.PushToUser(chat.UserID, event)
	if chat.ModeratorID != nil {
		d.registry.PushToModerator(*chat.ModeratorID, event)
	}
	if chat.AdminInterventionID != nil {
		d.registry.PushToModerator(*chat.AdminInterventionID, event)
	}
}

func (d *Dispatcher) publish(ctx context.Context, event bridgeEvent) {
	if (d.redis == nil || d.redisChannel == "") && (d.nats == nil || d.natsSubject == "") {
		return
	}

	event.Source = d.nodeID
	event.SentAt = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to marshal bridge event")
		return
	}

	if d.redis != nil && d.redisChannel != "" {
		if err := d.redis.Publish(ctx, d.redisChannel, payload).Err(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to publish bridge event to redis")
		}
	}

	if d.nats != nil && d.natsSubject != "" {
		if err := d.nats.Publish(d.natsSubject, payload); err != nil {
			d.logger.Warn().Err(err).Msg("failed to publish bridge event to nats")
		}
	}
}

func (d *Dispatcher) consumeRedis(ctx context.Context) {
	pubsub := d.redis.Subscribe(ctx, d.redisChannel)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		d.handleBridgeEvent([]byte(msg.Payload))
	}
}

func (d *Dispatcher) consumeNATS(ctx context.Context) {
	sub, err := d.nats.QueueSubscribe(d.natsSubject, "servineo-realtime", func(msg *nats.Msg) {
		d.handleBridgeEvent(msg.Data)
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("failed to subscribe to nats realtime subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

// handleBridgeEvent re-delivers an event published by a peer node to the
// sessions this node holds. Persistence already happened at the origin.
func (d *Dispatcher) handleBridgeEvent(data []byte) {
	var event bridgeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		d.logger.Warn().Err(err).Msg("invalid bridge event")
		return
	}

	if event.Source == d.nodeID {
		return
	}

	switch event.Kind {
	case bridgeKindConversation:
		if event.Message == nil || event.RecipientID == 0 {
			return
		}
		d.registry.PushToUser(event.Message.SenderID, Event{Type: EventMessageSent, Data: *event.Message})
		d.registry.PushToUser(event.RecipientID, Event{Type: EventNewMessage, Data: *event.Message})
		if event.Notification != nil {
			d.registry.PushToUser(event.RecipientID, Event{Type: EventNewNotification, Data: *event.Notification})
		}

	case bridgeKindSupportMessage:
		if event.Chat == nil || event.SupportMessage == nil {
			return
		}
		d.ackSupportSender(*event.SupportMessage)
		d.deliverSupportMessageLocal(*event.Chat, *event.SupportMessage)

	case bridgeKindSupportChat:
		if event.Chat == nil {
			return
		}
		d.registry.BroadcastToModerators(Event{Type: EventNewSupportChat, Data: *event.Chat})

	default:
		d.logger.Warn().Str("kind", event.Kind).Msg("unknown bridge event kind")
		return
	}

	observability.MessagesSent().WithLabelValues("bridge", event.Kind).Inc()
}

func notificationRef(notification dto.NotificationResponse, err error) *dto.NotificationResponse {
	if err != nil {
		return nil
	}
	return &notification
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"

	"github.com/google/uuid"
)

// historyLimit caps the backlog replayed to a joining participant.
const historyLimit = 50

// DeliveryDirectory resolves a delivery's parties. The deliveries service
// implements it.
type DeliveryDirectory interface {
	Parties(ctx context.Context, deliveryID string) (customerID, driverID string, err error)
}

// UserDirectory resolves display names for senders. The users repository
// implements it.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (*models.User, error)
}

// Notifier raises a notification for the counterparty of a fresh message.
// The wrapper persists in the caller's transaction and returns the pending
// notices; Dispatch pushes them after commit. The notifications service
// implements it.
type Notifier interface {
	NotifyNewChatMessage(ctx context.Context, recipientID, deliveryID, senderName, preview string) ([]*models.Notification, error)
	Dispatch(ns []*models.Notification)
}

// ServiceInterface defines the chat operations.
type ServiceInterface interface {
	RoomForDelivery(ctx context.Context, deliveryID, actorID, actorRole string) (*models.ChatRoom, error)
	History(ctx context.Context, roomID, actorID, actorRole string) ([]*models.ChatMessage, error)
	Send(ctx context.Context, roomID, senderID, senderRole string, req models.SendMessageRequest) (*models.ChatMessage, error)
	MarkRead(ctx context.Context, roomID, actorID, actorRole string) error

	// SystemMessage appends a synthesized message to a delivery's room,
	// creating the room on first use. The delivery state machine calls this
	// inside its transactions and hands the returned message to Announce
	// once the transaction has committed.
	SystemMessage(ctx context.Context, deliveryID, senderID, content string) (*models.ChatMessage, error)

	// Announce fans a committed message out to its room's realtime group.
	Announce(msg *models.ChatMessage)

	// Authorize reports whether the actor may join the room.
	Authorize(ctx context.Context, roomID, actorID, actorRole string) error
}

// Service implements chat rooms layered over the delivery party model.
type Service struct {
	repo       RepositoryInterface
	deliveries DeliveryDirectory
	users      UserDirectory
	notifier   Notifier
	bus        realtime.Bus
	tx         storage.TxRunner
}

// NewService creates a new chat service.
func NewService(
	repo RepositoryInterface,
	deliveries DeliveryDirectory,
	users UserDirectory,
	notifier Notifier,
	bus realtime.Bus,
	tx storage.TxRunner,
) *Service {
	return &Service{
		repo:       repo,
		deliveries: deliveries,
		users:      users,
		notifier:   notifier,
		bus:        bus,
		tx:         tx,
	}
}

// authorize returns the room plus the party on the other side of the actor,
// empty when the delivery has no driver yet.
func (s *Service) authorize(ctx context.Context, roomID, actorID, actorRole string) (*models.ChatRoom, string, error) {
	room, err := s.repo.FindRoomByID(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	customerID, driverID, err := s.deliveries.Parties(ctx, room.DeliveryID)
	if err != nil {
		return nil, "", err
	}
	switch actorID {
	case customerID:
		return room, driverID, nil
	case driverID:
		return room, customerID, nil
	}
	if actorRole == models.RoleAdmin {
		return room, "", nil
	}
	return nil, "", models.ErrAccessDenied
}

func (s *Service) Authorize(ctx context.Context, roomID, actorID, actorRole string) error {
	_, _, err := s.authorize(ctx, roomID, actorID, actorRole)
	return err
}

// RoomForDelivery returns the delivery's room for one of its parties.
func (s *Service) RoomForDelivery(ctx context.Context, deliveryID, actorID, actorRole string) (*models.ChatRoom, error) {
	room, err := s.repo.FindRoomByDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.authorize(ctx, room.ID, actorID, actorRole); err != nil {
		return nil, err
	}
	return room, nil
}

// History returns the most recent messages of the room in chronological
// order. An unknown room yields an empty backlog rather than an error, so a
// participant can attach before the first message lands.
func (s *Service) History(ctx context.Context, roomID, actorID, actorRole string) ([]*models.ChatMessage, error) {
	if _, _, err := s.authorize(ctx, roomID, actorID, actorRole); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []*models.ChatMessage{}, nil
		}
		return nil, err
	}
	messages, err := s.repo.ListRecentMessages(ctx, roomID, historyLimit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	return messages, nil
}

// Send appends a text message, fans it out to the room's group and raises a
// notification for the counterparty.
func (s *Service) Send(ctx context.Context, roomID, senderID, senderRole string, req models.SendMessageRequest) (*models.ChatMessage, error) {
	content := strings.TrimSpace(req.Message)
	if content == "" {
		return nil, fmt.Errorf("%w: message must not be empty", models.ErrValidation)
	}

	room, counterparty, err := s.authorize(ctx, roomID, senderID, senderRole)
	if err != nil {
		return nil, err
	}

	sender, err := s.users.FindUser(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		SenderID:    senderID,
		SenderName:  sender.Username,
		MessageType: models.MessageTypeText,
		Content:     content,
		IsRead:      true, // the sender has seen their own message
	}

	var pending []*models.Notification
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if counterparty == "" {
			return nil
		}
		pending, err = s.notifier.NotifyNewChatMessage(ctx, counterparty, room.DeliveryID, sender.Username, preview(content))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Announce(msg)
	s.notifier.Dispatch(pending)
	return msg, nil
}

func (s *Service) MarkRead(ctx context.Context, roomID, actorID, actorRole string) error {
	if _, _, err := s.authorize(ctx, roomID, actorID, actorRole); err != nil {
		return err
	}
	return s.repo.MarkMessagesRead(ctx, roomID, actorID)
}

// SystemMessage implements the delivery state machine's chat log. It runs in
// the caller's transaction, so the message commits or rolls back with the
// transition that produced it. Nothing is published here; the caller hands
// the returned message to Announce after its transaction commits.
func (s *Service) SystemMessage(ctx context.Context, deliveryID, senderID, content string) (*models.ChatMessage, error) {
	room, err := s.repo.FindRoomByDelivery(ctx, deliveryID)
	if errors.Is(err, models.ErrNotFound) {
		room = &models.ChatRoom{ID: uuid.New().String(), DeliveryID: deliveryID}
		err = s.repo.CreateRoom(ctx, room)
	}
	if err != nil {
		return nil, err
	}

	sender, err := s.users.FindUser(ctx, senderID)
	if err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:          uuid.New().String(),
		RoomID:      room.ID,
		SenderID:    senderID,
		SenderName:  sender.Username,
		MessageType: models.MessageTypeSystem,
		Content:     content,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Announce fans a committed message out to its room's realtime group.
func (s *Service) Announce(msg *models.ChatMessage) {
	if msg == nil {
		return
	}
	_ = s.bus.Publish(realtime.ChatGroup(msg.RoomID), realtime.NewEvent(realtime.EventChatMessage, map[string]any{
		"id":           msg.ID,
		"room_id":      msg.RoomID,
		"sender_id":    msg.SenderID,
		"sender":       msg.SenderName,
		"message_type": msg.MessageType,
		"message":      msg.Content,
		"timestamp":    msg.Timestamp.Format("15:04"),
	}))
}

func preview(content string) string {
	const max = 50
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}

package service

import (
	"context"
	"strings"

	"github.com/PaulBabatuyi/urbanease/internal/database"
	"github.com/PaulBabatuyi/urbanease/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type MessageService struct {
	store  MessageStore
	logger *zap.Logger
}

func NewMessageService(store MessageStore, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{store: store, logger: logger.Named("messages")}
}

// UnreadCount returns how many messages userID has not read. Users may
// only ask about themselves unless they are admins.
func (s *MessageService) UnreadCount(ctx context.Context, viewer session.User, userID string) (int, error) {
	ctx, span := tracer.Start(ctx, "MessageService.UnreadCount")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	if err := requireUser(viewer); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, invalid("userId is required")
	}
	if userID != viewer.ID && !viewer.IsAdmin() {
		return 0, ErrNotOwner
	}
	return s.store.CountUnread(ctx, userID)
}

func (s *MessageService) Send(ctx context.Context, from session.User, to, body string, booking bool) (*database.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()

	if err := requireUser(from); err != nil {
		return nil, err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, invalid("receiverId is required")
	}
	if to == from.ID {
		return nil, invalid("cannot message yourself")
	}
	if strings.TrimSpace(body) == "" {
		return nil, invalid("message body is required")
	}

	m := &database.Message{SenderID: from.ID, ReceiverID: to, Body: body}
	if booking {
		m.BookingStatus = database.BookingPending
	}
	if err := s.store.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MessageService) MarkRead(ctx context.Context, user session.User, messageID string) error {
	ctx, span := tracer.Start(ctx, "MessageService.MarkRead")
	defer span.End()

	if err := requireUser(user); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, messageID, user.ID)
}

// UpdateBookingStatus sets the booking status on a message one of the
// participants (or an admin) owns and returns the updated message.
func (s *MessageService) UpdateBookingStatus(ctx context.Context, user session.User, messageID, status string) (*database.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.UpdateBookingStatus")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID), attribute.String("booking.status", status))

	if err := requireUser(user); err != nil {
		return nil, err
	}
	st, err := database.ParseBookingStatus(status)
	if err != nil {
		return nil, invalid("%v", err)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !msg.HasParticipant(user.ID) && !user.IsAdmin() {
		return nil, ErrNotOwner
	}

	updated, err := s.store.UpdateBookingStatus(ctx, messageID, st)
	if err != nil {
		return nil, err
	}
	s.logger.Info("booking status updated",
		zap.String("message_id", messageID),
		zap.String("status", string(st)),
		zap.String("by", user.ID),
	)
	return updated, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/models"
)

// WindowSize is how many stored turns precede the new message in a prompt.
const WindowSize = 20

const maxMessageLength = 8000

type MessageStore interface {
	RecentMessages(ctx context.Context, userID uint, n int) ([]models.Message, error)
	History(ctx context.Context, userID uint) ([]models.Message, error)
	AppendExchange(ctx context.Context, userID uint, userTurn, reply string) error
}

// ChatService relays conversations to the completion API and records each
// finished exchange.
type ChatService struct {
	messages  MessageStore
	completer Completer
}

func NewChatService(messages MessageStore, completer Completer) *ChatService {
	return &ChatService{messages: messages, completer: completer}
}

func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if len(message) > maxMessageLength {
		return fmt.Errorf("%w: message too long (max %d characters)", ErrValidation, maxMessageLength)
	}
	return nil
}

// BuildWindow returns up to WindowSize stored turns oldest-first followed
// by the new user message.
func (s *ChatService) BuildWindow(ctx context.Context, userID uint, message string) ([]dto.ChatTurn, error) {
	recent, err := s.messages.RecentMessages(ctx, userID, WindowSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	window := make([]dto.ChatTurn, 0, len(recent)+1)
	for _, m := range recent {
		window = append(window, dto.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return append(window, dto.ChatTurn{Role: models.RoleUser, Content: message}), nil
}

// Reply performs a single completion. Nothing is stored unless the
// upstream call succeeds.
func (s *ChatService) Reply(ctx context.Context, user *models.User, message string) (string, error) {
	if err := ValidateMessage(message); err != nil {
		return "", err
	}

	window, err := s.BuildWindow(ctx, user.ID, message)
	if err != nil {
		return "", err
	}

	reply, err := s.completer.Complete(ctx, window)
	if err != nil {
		slog.Error("completion failed", "user_id", user.ID, "error", err)
		return "", err
	}

	if err := s.messages.AppendExchange(ctx, user.ID, message, reply); err != nil {
		return "", fmt.Errorf("failed to save messages: %w", err)
	}
	return reply, nil
}

// StreamReply hands each fragment to emit as it arrives. The exchange is
// stored only after the upstream stream ends cleanly; a partial reply is
// dropped.
func (s *ChatService) StreamReply(ctx context.Context, user *models.User, message string, emit func(fragment string) error) (string, error) {
	if err := ValidateMessage(message); err != nil {
		return "", err
	}

	window, err := s.BuildWindow(ctx, user.ID, message)
	if err != nil {
		return "", err
	}

	stream, err := s.completer.Stream(ctx, window)
	if err != nil {
		slog.Error("completion stream failed to open", "user_id", user.ID, "error", err)
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			slog.Error("completion stream failed", "user_id", user.ID, "partial_len", reply.Len(), "error", err)
			return "", err
		}

		reply.WriteString(fragment)
		if err := emit(fragment); err != nil {
			slog.Warn("stream client went away", "user_id", user.ID, "partial_len", reply.Len(), "error", err)
			return "", err
		}
	}

	if err := s.messages.AppendExchange(ctx, user.ID, message, reply.String()); err != nil {
		return "", fmt.Errorf("failed to save messages: %w", err)
	}
	return reply.String(), nil
}

// History returns every stored turn of the user, oldest first.
func (s *ChatService) History(ctx context.Context, userID uint) ([]dto.ChatTurn, error) {
	msgs, err := s.messages.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	turns := make([]dto.ChatTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, dto.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

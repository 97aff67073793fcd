package handlers

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/dto"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

var errClientGone = errors.New("stream client disconnected")

type ChatHandler struct {
	chatService *services.ChatService
}

func NewChatHandler(chatService *services.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}

	reply, err := h.chatService.Reply(c.UserContext(), user, req.Message)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.ChatResponse{Reply: reply})
}

// Stream handles POST /api/chat/stream. Once headers are sent the status
// is always 200; failures are reported as an "error" event.
func (h *ChatHandler) Stream(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(c)
	}
	if err := services.ValidateMessage(req.Message); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	message := req.Message

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		_, err := h.chatService.StreamReply(ctx, user, message, func(fragment string) error {
			writeEvent(w, "", fragment)
			if err := w.Flush(); err != nil {
				return fmt.Errorf("%w: %v", errClientGone, err)
			}
			return nil
		})
		if errors.Is(err, errClientGone) {
			return
		}
		if err != nil {
			writeEvent(w, "error", "Chat failed")
		} else {
			writeEvent(w, "done", "[DONE]")
		}
		if err := w.Flush(); err != nil {
			slog.Debug("stream flush failed", "user_id", user.ID, "error", err)
		}
	}))

	return nil
}

// History handles GET /api/chat/history
func (h *ChatHandler) History(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return fiber.ErrUnauthorized
	}

	turns, err := h.chatService.History(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(turns)
}

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeEvent writes one SSE frame. Multi-line data becomes one data: line
// per line so clients rejoin it with newlines. CR and CRLF count as line
// breaks, as they do for SSE parsers.
func writeEvent(w *bufio.Writer, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	for _, line := range strings.Split(lineEndings.Replace(data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	w.WriteString("\n")
}

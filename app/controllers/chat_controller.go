package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MediaDash/internal/pkg/chat"
)

const completionTimeout = 5 * time.Minute

// ChatController serves the assistant chat API.
type ChatController struct {
	chats *chat.Service
}

// NewChatController creates a chat controller
func NewChatController(chats *chat.Service) *ChatController {
	return &ChatController{chats: chats}
}

func (cc *ChatController) HandleCreate(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var in chat.CreateInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "Request body must be valid JSON")
		}
	}
	created, err := cc.chats.Create(caller.UserID, in)
	if err != nil {
		return cc.chatError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

func (cc *ChatController) HandleList(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	offset, limit := pagination(c)
	chats, err := cc.chats.List(caller.UserID, offset, limit)
	if err != nil {
		return cc.chatError(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats, "offset": offset, "limit": limit})
}

func (cc *ChatController) HandleGet(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	found, err := cc.chats.Get(caller.UserID, c.Params("id"))
	if err != nil {
		return cc.chatError(c, err)
	}
	return c.JSON(found)
}

func (cc *ChatController) HandleUpdate(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var in chat.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}
	if in.Title == nil && in.Messages == nil {
		return badRequest(c, "title or messages is required")
	}
	updated, err := cc.chats.Update(caller.UserID, c.Params("id"), in)
	if err != nil {
		return cc.chatError(c, err)
	}
	return c.JSON(updated)
}

func (cc *ChatController) HandleDelete(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	if err := cc.chats.Delete(caller.UserID, c.Params("id")); err != nil {
		return cc.chatError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleCompletion streams the model answer as server-sent events: one
// "delta" event per chunk, then "done" with usage or "error". The turn is
// stored only after the stream finished and every chunk reached the client.
func (cc *ChatController) HandleCompletion(c *fiber.Ctx) error {
	caller, ok := requireCaller(c)
	if !ok {
		return nil
	}
	var in chat.CompletionInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "Request body must be valid JSON")
	}
	if strings.TrimSpace(in.Message) == "" {
		return badRequest(c, "message is required")
	}
	chatID := c.Params("id")
	if _, err := cc.chats.CheckCompletion(caller.UserID, chatID, in); err != nil {
		return cc.chatError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	userID := caller.UserID
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
		defer cancel()

		res, err := cc.chats.Complete(ctx, userID, chatID, in, func(delta string) error {
			if err := writeEvent(w, "delta", fiber.Map{"content": delta}); err != nil {
				cancel()
				return err
			}
			return nil
		})
		if err != nil {
			log.Warnf("[Chat] stream for chat %s ended early: %v", chatID, err)
			_ = writeEvent(w, "error", fiber.Map{"error": "completion_failed", "message": completionErrorMessage(err)})
			return
		}
		_ = writeEvent(w, "done", fiber.Map{
			"chat_id": res.Chat.ID,
			"title":   res.Chat.Title,
			"model":   res.Model,
			"usage":   res.Usage,
		})
	})
	return nil
}

// writeEvent writes one SSE frame and flushes it to the client.
func writeEvent(w *bufio.Writer, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return w.Flush()
}

func completionErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrTooLong):
		return "Message is too long"
	case errors.Is(err, chat.ErrTooManyTurns):
		return "Chat has reached its message limit"
	case errors.Is(err, chat.ErrNoModelConfig):
		return "No model is configured"
	case errors.Is(err, context.DeadlineExceeded):
		return "Completion timed out"
	default:
		return "Model request failed"
	}
}

func (cc *ChatController) chatError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return notFound(c, "Chat not found")
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrTooLong), errors.Is(err, chat.ErrTooManyTurns):
		return badRequest(c, err.Error())
	default:
		log.Errorf("[Chat] request failed: %v", err)
		return internalError(c, "Chat request failed")
	}
}

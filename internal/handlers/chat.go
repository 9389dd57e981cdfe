package handlers

import (
	"net/http"
	"time"

	"telehealth/internal/services"
	"telehealth/internal/utils"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat          *services.ChatService
	conversations *services.ConversationService
}

func NewChatHandler(chat *services.ChatService, conversations *services.ConversationService) *ChatHandler {
	return &ChatHandler{chat: chat, conversations: conversations}
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required" validate:"required"`
}

type markReadRequest struct {
	Upto *time.Time `json:"upto"`
}

// SendMessage persists a direct message and relays it to the receiver.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	sender, ok := identity(c)
	if !ok {
		return
	}
	var req services.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chat.SendMessage(c.Request.Context(), sender, req)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.APIResponse{
		Success:   true,
		Message:   "Message sent",
		Data:      msg,
		Timestamp: time.Now(),
	})
}

func (h *ChatHandler) EditMessage(c *gin.Context) {
	editor, ok := identity(c)
	if !ok {
		return
	}
	var req editMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	msg, err := h.chat.EditMessage(c.Request.Context(), editor, c.Param("id"), req.Body)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, msg)
}

func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	deleter, ok := identity(c)
	if !ok {
		return
	}
	if err := h.chat.DeleteMessage(c.Request.Context(), deleter, c.Param("id")); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponseWithMessage(c, "Message deleted", nil)
}

// GetConversation pages the history between the caller and :user_id.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	reader, ok := identity(c)
	if !ok {
		return
	}
	page, err := h.conversations.GetConversation(c.Request.Context(), reader, c.Param("user_id"),
		queryInt(c, "page", 1), queryInt(c, "limit", 0))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponseWithMeta(c, page.Messages, &utils.Meta{
		Page:  page.Page,
		Limit: page.Limit,
		Total: len(page.Messages),
	})
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	user, ok := identity(c)
	if !ok {
		return
	}
	convs, err := h.conversations.ListConversations(c.Request.Context(), user, queryInt(c, "limit", 0))
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, convs)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	reader, ok := identity(c)
	if !ok {
		return
	}
	var req markReadRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	var upto time.Time
	if req.Upto != nil {
		upto = *req.Upto
	}

	receipt, err := h.conversations.MarkRead(c.Request.Context(), reader, c.Param("conversation_id"), upto)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, receipt)
}

func (h *ChatHandler) UnreadCount(c *gin.Context) {
	user, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.conversations.UnreadCount(c.Request.Context(), user)
	if err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"unread_count": n})
}

// Typing relays a typing indicator over REST for clients without a socket.
func (h *ChatHandler) Typing(c *gin.Context) {
	sender, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required" validate:"required"`
		Typing     bool   `json:"typing"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.chat.Typing(sender, req.ReceiverID, req.Typing); err != nil {
		utils.DomainErrorResponse(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Package handler - внутренний HTTP вход chat-service: обработчик отправки сообщения
// сообщает сюда о новом сообщении, а сервис публикует MESSAGE_RECEIVED.
package handler

import (
	"context"
	"errors"
	"net/http"

	"chat-server/chat-service/internal/service"
	"chat-server/shared/messaging"
	"chat-server/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const MessageReceivedPath = "/internal/notifications/message-received"

type MessageNotifier interface {
	NotifyMessageReceived(ctx context.Context, msg service.SentMessage) error
}

type messageReceivedRequest struct {
	SenderID            string `json:"senderId" binding:"required"`
	ReceiverID          string `json:"receiverId" binding:"required"`
	Message             string `json:"message" binding:"required"`
	ReceiverDeviceToken string `json:"receiverDeviceToken"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type NotifyHandler struct {
	notifier MessageNotifier
	logger   *zap.Logger
}

func NewNotifyHandler(notifier MessageNotifier, logger *zap.Logger) *NotifyHandler {
	return &NotifyHandler{notifier: notifier, logger: logger.Named("NotifyHandler")}
}

func (h *NotifyHandler) RegisterRoutes(router gin.IRouter) {
	router.POST(MessageReceivedPath, h.messageReceived)
}

func (h *NotifyHandler) messageReceived(c *gin.Context) {
	var req messageReceivedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body for messageReceived", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Code: "bad_request", Message: err.Error()})
		return
	}

	err := h.notifier.NotifyMessageReceived(c.Request.Context(), service.SentMessage{
		SenderID:            req.SenderID,
		ReceiverID:          req.ReceiverID,
		Text:                req.Message,
		ReceiverDeviceToken: req.ReceiverDeviceToken,
	})
	if err != nil {
		handleNotifyError(c, err, h.logger)
		return
	}
	c.Status(http.StatusAccepted)
}

func handleNotifyError(c *gin.Context, err error, logger *zap.Logger) {
	var statusCode int
	var errResp errorResponse

	switch {
	case errors.Is(err, service.ErrEmptyRecipient), errors.Is(err, models.ErrInvalidPayload):
		statusCode = http.StatusBadRequest
		errResp = errorResponse{Code: "bad_request", Message: err.Error()}
	case errors.Is(err, models.ErrUserNotFound):
		statusCode = http.StatusNotFound
		errResp = errorResponse{Code: "user_not_found", Message: "User not found"}
	case errors.Is(err, messaging.ErrRequestTimeout):
		statusCode = http.StatusGatewayTimeout
		errResp = errorResponse{Code: "timeout", Message: "User service did not respond in time"}
	case errors.Is(err, messaging.ErrNotConnected), errors.Is(err, messaging.ErrConnectionStopped):
		statusCode = http.StatusServiceUnavailable
		errResp = errorResponse{Code: "broker_unavailable", Message: "Message broker is unavailable"}
	case errors.Is(err, messaging.ErrRemote):
		statusCode = http.StatusBadGateway
		errResp = errorResponse{Code: "upstream_error", Message: "User service failed to answer"}
	default:
		logger.Error("Unhandled error in messageReceived", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = errorResponse{Code: "internal", Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}

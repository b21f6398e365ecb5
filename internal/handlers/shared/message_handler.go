package shared

import (
	"tripchat/internal/models"
	"tripchat/internal/services"
	"tripchat/internal/utils"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageService *services.MessageService
}

func NewMessageHandler(messageService *services.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// GetTripMessages returns the chat history of a trip, oldest first
func (h *MessageHandler) GetTripMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	tripID, ok := pathID(c, "id")
	if !ok {
		return
	}

	messages, err := h.messageService.History(c.Request.Context(), tripID, userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	utils.SuccessResponseWithMeta(c, "Messages retrieved successfully", messages, &utils.Meta{Count: len(messages)})
}

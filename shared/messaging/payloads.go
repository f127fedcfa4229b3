package messaging

import (
	"encoding/json"
	"fmt"

	"chat-server/shared/models"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// UserDetailsRequest - запрос профиля пользователя через очередь.
type UserDetailsRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// ResponseError - явный маркер неудачи в UserDetailsResponse.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message,omitempty"`
}

// UserDetailsResponse - ответ на UserDetailsRequest.
// При успехе поля профиля лежат на верхнем уровне JSON, при неудаче заполнено только Error.
type UserDetailsResponse struct {
	*models.UserProfile
	Error *ResponseError `json:"error,omitempty"`
}

// NotificationEvent - событие из очереди notifications.
type NotificationEvent struct {
	Type      NotificationType `json:"type" validate:"required"`
	UserID    string           `json:"userId" validate:"required"`
	Message   string           `json:"message"`
	UserEmail string           `json:"userEmail,omitempty"`
	UserToken string           `json:"userToken,omitempty"`
	FromName  string           `json:"fromName"`
}

// PresenceEvent публикуется трекером real-time соединений при подключении и отключении пользователя.
type PresenceEvent struct {
	UserID string `json:"userId" validate:"required"`
	Online bool   `json:"online"`
}

// Decode разбирает JSON тело сообщения и проверяет обязательные поля.
// Все ошибки оборачивают models.ErrInvalidPayload.
func Decode[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	if err := validate.Struct(v); err != nil {
		return v, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}
	return v, nil
}

package messaging

// Имена очередей по умолчанию. Все очереди durable и объявляются идемпотентно.
const (
	UserDetailsRequestQueue  = "USER_DETAILS_REQUEST"
	UserDetailsResponseQueue = "USER_DETAILS_RESPONSE"
	NotificationsQueue       = "notifications"
	PresenceQueue            = "user_presence"
)

const contentTypeJSON = "application/json"

// NotificationType - тип события в очереди notifications.
type NotificationType string

const (
	NotificationTypeMessageReceived NotificationType = "MESSAGE_RECEIVED"
)

// ErrorCode - код ошибки в ответе на USER_DETAILS_REQUEST.
type ErrorCode string

const (
	ErrorCodeNotFound   ErrorCode = "not_found"
	ErrorCodeBadRequest ErrorCode = "bad_request"
	ErrorCodeInternal   ErrorCode = "internal"
)

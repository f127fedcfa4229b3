package models

import "errors"

// Общие ошибки домена чата.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrInvalidPayload = errors.New("invalid payload")
)

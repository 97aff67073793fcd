package services

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/store"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailTaken         = store.ErrEmailTaken
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrUserNotFound       = store.ErrUserNotFound
	ErrUpstream           = errors.New("completion upstream failed")
)

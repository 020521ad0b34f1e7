package application

import (
	"context"

	"telegram-link-shortener/internal/domain/model"
)

// ---- small interfaces to decouple the facade from concrete usecase structs ----
// usecase.ShortenUseCase satisfies it; tests pass light-weight fakes.
type ShortenUseCaseIface interface {
	Authorize(senderID int64) error
	IsAdmin(senderID int64) bool
	ValidateURL(raw string) (string, error)
	ExtractURLs(text string) []string
	Plan(req model.IncomingRequest) ([]string, error)
	Shorten(ctx context.Context, req model.IncomingRequest) ([]model.ShortenResult, error)
	Stats() model.Stats
}

// Translator renders locale keys; *i18n.Translator in production.
type Translator interface {
	T(key string, args ...interface{}) string
}

// QREncoder renders content as a PNG. qr.Encode in production.
type QREncoder func(content string) ([]byte, error)

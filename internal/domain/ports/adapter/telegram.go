package adapter

import "context"

type InlineButton struct {
	Text string
	Data string
	URL  string
}

type TelegramBotAdapter interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendButtons(ctx context.Context, chatID int64, text string, rows [][]InlineButton) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
}

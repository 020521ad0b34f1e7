package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-link-shortener/internal/application"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
)

const (
	qrPrefix     = "qr:"
	helpCallback = "cmd:help"
)

type cbHandler func(ctx context.Context, senderID, chatID int64, data string) error
type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	return map[string]cbHandler{
		helpCallback: r.helpCBRoute,
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{
			Prefix: qrPrefix,
			Fn:     r.qrPrefixCBRoute,
		},
	}
}

func (r *RealTelegramBotAdapter) helpCBRoute(ctx context.Context, _, chatID int64, _ string) error {
	return r.SendMessage(ctx, chatID, r.facade.HandleHelp())
}

func (r *RealTelegramBotAdapter) qrPrefixCBRoute(ctx context.Context, senderID, chatID int64, data string) error {
	return r.sendQR(ctx, senderID, chatID, strings.TrimPrefix(data, qrPrefix))
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}

	// Stop telegram spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	var chatID int64
	if query.Message != nil && query.Message.Chat != nil {
		chatID = query.Message.Chat.ID
	} else {
		chatID = query.From.ID
	}
	if chatID == 0 {
		return nil
	}
	ctx = logging.WithTgID(ctx, query.From.ID)
	ctx = logging.WithChatID(ctx, chatID)

	data := strings.TrimSpace(query.Data)
	metrics.IncTelegramCommand("callback")

	if err := r.facade.ShortenUC.Authorize(query.From.ID); err != nil {
		metrics.IncUnauthorized()
		return r.SendMessage(ctx, chatID, r.facade.T(application.KeyUnauthorized))
	}

	// Exact matches
	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query.From.ID, chatID, data)
	}
	// Prefix matches
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query.From.ID, chatID, data)
		}
	}
	return fmt.Errorf("unknown callback data %q", data)
}

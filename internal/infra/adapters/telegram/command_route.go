package telegram

import (
	"context"
	"errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-link-shortener/internal/application"
	"telegram-link-shortener/internal/domain"
	"telegram-link-shortener/internal/domain/model"
	"telegram-link-shortener/internal/domain/ports/adapter"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
)

// maxCallbackData is Telegram's limit for inline button callback data.
const maxCallbackData = 64

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start": r.handleStartCommand,
		"help":  r.handleHelpCommand,
		"short": r.allowedOnly(r.handleShortCommand),
		"qr":    r.allowedOnly(r.handleQRCommand),

		// These handlers are wrapped in our adminOnly middleware.
		"stats": r.adminOnly(r.handleStatsCommand),
	}
}

// allowedOnly rejects senders outside the allow-list before next runs.
func (r *RealTelegramBotAdapter) allowedOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if err := r.facade.ShortenUC.Authorize(message.From.ID); err != nil {
			metrics.IncUnauthorized()
			logging.With(ctx, r.log).Info().Msg("sender not in allow-list")
			return r.SendMessage(ctx, message.Chat.ID, r.facade.T(application.KeyUnauthorized))
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.facade.ShortenUC.IsAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.SendMessage(ctx, message.Chat.ID, r.facade.T(application.KeyUnauthorized))
		}
		metrics.IncAdminCommand("/"+message.Command(), "authorized")
		return next(ctx, message)
	}
}

// handleStartCommand handles the /start command.
func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	if r.facade.ShortenUC.IsAdmin(message.From.ID) {
		if err := r.SetMenuCommands(ctx, message.Chat.ID, true); err != nil {
			// Log the error but don't block the user
			logging.With(ctx, r.log).Warn().Err(err).Msg("failed to set admin menu commands")
		}
	}
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp())
}

func (r *RealTelegramBotAdapter) handleHelpCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.SendMessage(ctx, message.Chat.ID, r.facade.HandleHelp())
}

// handleShortCommand handles /short <url> [alias].
func (r *RealTelegramBotAdapter) handleShortCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.Fields(message.CommandArguments())
	req := model.IncomingRequest{
		SenderID: message.From.ID,
		ChatID:   message.Chat.ID,
		Explicit: true,
	}
	if len(args) > 0 {
		req.Text = args[0]
	}
	if len(args) > 1 {
		req.Alias = args[1]
	}
	return r.shorten(ctx, req)
}

// handleText treats every URL in a plain message as a shorten request.
func (r *RealTelegramBotAdapter) handleText(ctx context.Context, message *tgbotapi.Message) error {
	return r.shorten(ctx, model.IncomingRequest{
		SenderID: message.From.ID,
		ChatID:   message.Chat.ID,
		Text:     message.Text,
	})
}

func (r *RealTelegramBotAdapter) shorten(ctx context.Context, req model.IncomingRequest) error {
	if text, ok := r.facade.HandleProgress(req); ok {
		if err := r.SendMessage(ctx, req.ChatID, text); err != nil {
			logging.With(ctx, r.log).Warn().Err(err).Msg("failed to send progress message")
		}
	}
	reply, err := r.facade.HandleShort(ctx, req)
	if err != nil {
		logging.With(ctx, r.log).Debug().Err(err).Msg("shorten request rejected")
	}
	if len(reply.Links) == 0 {
		return r.SendMessage(ctx, req.ChatID, reply.Text)
	}
	return r.SendButtons(ctx, req.ChatID, reply.Text, r.linkButtons(reply.Links))
}

// linkButtons builds one [Open] [QR] row per link. The QR button is left out
// when its callback data would not fit.
func (r *RealTelegramBotAdapter) linkButtons(links []string) [][]adapter.InlineButton {
	openLabel, qrLabel := r.facade.T(application.KeyBtnOpen), r.facade.T(application.KeyBtnQR)
	rows := make([][]adapter.InlineButton, 0, len(links))
	for _, link := range links {
		row := []adapter.InlineButton{{Text: openLabel, URL: link}}
		if data := qrPrefix + link; len(data) <= maxCallbackData {
			row = append(row, adapter.InlineButton{Text: qrLabel, Data: data})
		}
		rows = append(rows, row)
	}
	return rows
}

// handleQRCommand handles /qr <url>.
func (r *RealTelegramBotAdapter) handleQRCommand(ctx context.Context, message *tgbotapi.Message) error {
	raw := strings.TrimSpace(message.CommandArguments())
	if raw == "" {
		return r.SendMessage(ctx, message.Chat.ID, r.facade.T(application.KeyQRUsage))
	}
	return r.sendQR(ctx, message.From.ID, message.Chat.ID, raw)
}

func (r *RealTelegramBotAdapter) sendQR(ctx context.Context, senderID, chatID int64, raw string) error {
	png, caption, err := r.facade.HandleQR(ctx, senderID, raw)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidURL) && !errors.Is(err, domain.ErrUnauthorized) {
			logging.With(ctx, r.log).Error().Err(err).Msg("qr rendering failed")
		}
		return r.SendMessage(ctx, chatID, r.facade.DescribeError(err))
	}
	return r.SendPhoto(ctx, chatID, png, caption)
}

func (r *RealTelegramBotAdapter) handleStatsCommand(ctx context.Context, message *tgbotapi.Message) error {
	text, err := r.facade.HandleStats(ctx, message.From.ID)
	if err != nil {
		text = r.facade.DescribeError(err)
	}
	return r.SendMessage(ctx, message.Chat.ID, text)
}

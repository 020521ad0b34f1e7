package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-link-shortener/internal/application"
	"telegram-link-shortener/internal/config"
	"telegram-link-shortener/internal/domain/ports/adapter"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
)

var _ adapter.TelegramBotAdapter = (*RealTelegramBotAdapter)(nil)

// botClient is the part of *tgbotapi.BotAPI the adapter uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// RealTelegramBotAdapter uses tgbotapi to poll updates and delegates to BotFacade.
type RealTelegramBotAdapter struct {
	bot    botClient
	cfg    *config.BotConfig
	facade *application.BotFacade
	log    *zerolog.Logger

	updateWorkers int
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, facade *application.BotFacade, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	return newRealTelegramBotAdapter(bot, cfg, facade, logger)
}

func newRealTelegramBotAdapter(bot botClient, cfg *config.BotConfig, facade *application.BotFacade, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	if facade == nil {
		return nil, errors.New("bot facade is nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		facade:        facade,
		log:           logger,
		updateWorkers: workers,
	}, nil
}

// StartPolling blocks until ctx is cancelled. Updates queued while the bot
// was offline are dropped.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if _, err := r.bot.Request(tgbotapi.DeleteWebhookConfig{DropPendingUpdates: true}); err != nil {
		r.log.Warn().Err(err).Msg("failed to drop pending updates")
	}
	if err := r.SetMenuCommands(ctx, 0, false); err != nil {
		r.log.Warn().Err(err).Msg("failed to set menu commands")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for up := range updateChan {
				r.dispatch(ctx, id, up)
			}
		}(i)
	}

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	defer func() {
		r.bot.StopReceivingUpdates()
		close(updateChan)
		wg.Wait()
		r.log.Info().Msg("telegram polling stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case updateChan <- up:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// dispatch runs one update with its own trace id. Nothing escapes it.
func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, worker int, up tgbotapi.Update) {
	ctx = logging.WithTraceID(ctx, ulid.Make().String())
	defer func() {
		if rec := recover(); rec != nil {
			logging.With(ctx, r.log).Error().Interface("panic", rec).Int("worker", worker).Msg("panic recovered")
		}
	}()
	if err := r.handleUpdate(ctx, up); err != nil {
		logging.With(ctx, r.log).Error().Err(err).Int("worker", worker).Int("update_id", up.UpdateID).Msg("update handling failed")
	}
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	// ----- Inline button callbacks -----
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}

	// ----- Inline mode -----
	if update.InlineQuery != nil {
		return r.handleInlineQuery(ctx, update.InlineQuery)
	}

	// ----- Regular messages -----
	message := update.Message
	if message == nil || message.From == nil || message.Chat == nil {
		return nil
	}
	ctx = logging.WithTgID(ctx, message.From.ID)
	ctx = logging.WithChatID(ctx, message.Chat.ID)

	if message.IsCommand() {
		command := message.Command()
		metrics.IncTelegramCommand("/" + command)
		if handler, ok := r.commandRoutes()[strings.ToLower(command)]; ok {
			return handler(ctx, message)
		}
		return r.SendButtons(ctx, message.Chat.ID, r.facade.T(application.KeyUnknownCommand), [][]adapter.InlineButton{
			{{Text: r.facade.T(application.KeyBtnHelp), Data: helpCallback}},
		})
	}

	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	metrics.IncTelegramCommand("message")
	return r.allowedOnly(r.handleText)(ctx, message)
}

// SendMessage sends plain text with link previews disabled.
func (r *RealTelegramBotAdapter) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	_, err := r.bot.Send(msg)
	metrics.IncReply(err == nil)
	return err
}

// SendButtons sends a message with inline buttons using tgbotapi.
// - If btn.URL is set, the button opens a link
// - Else if btn.Data is set, the button sends callback data
// - Else a safe fallback uses btn.Text as callback data
func (r *RealTelegramBotAdapter) SendButtons(
	ctx context.Context,
	chatID int64,
	text string,
	rows [][]adapter.InlineButton,
) error {
	// Support early cancellation
	if err := ctx.Err(); err != nil {
		return err
	}

	kbRows := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		kr := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			label := strings.TrimSpace(btn.Text)
			if label == "" {
				label = "•"
			}
			switch {
			case btn.URL != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonURL(label, btn.URL))
			case btn.Data != "":
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, btn.Data))
			default:
				kr = append(kr, tgbotapi.NewInlineKeyboardButtonData(label, label))
			}
		}
		kbRows = append(kbRows, kr)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(kbRows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	}
	_, err := r.bot.Send(msg)
	metrics.IncReply(err == nil)
	return err
}

// SendPhoto uploads a PNG with a caption.
func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "qr.png", Bytes: png})
	photo.Caption = caption
	_, err := r.bot.Send(photo)
	metrics.IncReply(err == nil)
	return err
}

// SetMenuCommands publishes the command menu. chatID 0 sets the default
// menu; otherwise the menu is scoped to that chat, with admin commands
// when isAdmin.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context, chatID int64, isAdmin bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	commands := []tgbotapi.BotCommand{
		{Command: "short", Description: r.facade.T(application.KeyCmdShort)},
		{Command: "qr", Description: r.facade.T(application.KeyCmdQR)},
		{Command: "help", Description: r.facade.T(application.KeyCmdHelp)},
	}
	if isAdmin {
		commands = append(commands, tgbotapi.BotCommand{Command: "stats", Description: r.facade.T(application.KeyCmdStats)})
	}

	var cfg tgbotapi.SetMyCommandsConfig
	if chatID == 0 {
		cfg = tgbotapi.NewSetMyCommands(commands...)
	} else {
		cfg = tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(chatID), commands...)
	}
	_, err := r.bot.Request(cfg)
	return err
}

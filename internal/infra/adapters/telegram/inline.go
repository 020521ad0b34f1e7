package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"telegram-link-shortener/internal/application"
	"telegram-link-shortener/internal/infra/logging"
	"telegram-link-shortener/internal/infra/metrics"
)

// handleInlineQuery offers the short link of the first URL in the query as a
// single article. Queries that yield nothing are left unanswered.
func (r *RealTelegramBotAdapter) handleInlineQuery(ctx context.Context, q *tgbotapi.InlineQuery) error {
	if q == nil || q.From == nil || !r.cfg.InlineMode {
		return nil
	}
	ctx = logging.WithTgID(ctx, q.From.ID)
	metrics.IncTelegramCommand("inline")

	short, ok := r.facade.HandleInline(ctx, q.From.ID, q.Query)
	if !ok {
		return nil
	}

	article := tgbotapi.NewInlineQueryResultArticle(uuid.NewString(), r.facade.T(application.KeyInlineTitle), short)
	article.Description = short
	article.InputMessageContent = tgbotapi.InputTextMessageContent{
		Text:                  short,
		DisableWebPagePreview: true,
	}

	answer := tgbotapi.InlineConfig{
		InlineQueryID: q.ID,
		Results:       []interface{}{article},
		CacheTime:     0,
		IsPersonal:    true,
	}
	if _, err := r.bot.Request(answer); err != nil {
		return fmt.Errorf("answer inline query: %w", err)
	}
	return nil
}

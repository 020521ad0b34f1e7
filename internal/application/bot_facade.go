package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-link-shortener/internal/domain"
	"telegram-link-shortener/internal/domain/model"
	"telegram-link-shortener/internal/infra/logging"
)

// Locale keys of the chat replies.
const (
	KeyUnauthorized   = "unauthorized"
	KeyShortUsage     = "usage_short"
	KeyQRUsage        = "usage_qr"
	KeyInvalidURL     = "invalid_url"
	KeyInvalidAlias   = "invalid_alias"
	KeyNoURL          = "no_url"
	KeyNoAllowedURL   = "no_allowed_url"
	KeyInternal       = "internal_error"
	KeyUnknownCommand = "unknown_command"
	KeyProcessing     = "processing"
	KeyHelp           = "help"
	KeyHelpPlain      = "help_plain_text"
	KeyHelpInline     = "help_plain_text_inline"
	KeyFailedFor      = "failed_for"
	KeyFailAliasTaken = "fail_alias_taken"
	KeyFailUnavail    = "fail_unavailable"
	KeyFailNoResponse = "fail_no_response"
	KeyStats          = "stats"
	KeyBtnOpen        = "btn_open"
	KeyBtnQR          = "btn_qr"
	KeyBtnHelp        = "btn_help"
	KeyInlineTitle    = "inline_title"
	KeyCmdShort       = "cmd_short"
	KeyCmdQR          = "cmd_qr"
	KeyCmdHelp        = "cmd_help"
	KeyCmdStats       = "cmd_stats"
)

// LocaleKeys lists every key the bot renders.
var LocaleKeys = []string{
	KeyUnauthorized, KeyShortUsage, KeyQRUsage, KeyInvalidURL, KeyInvalidAlias,
	KeyNoURL, KeyNoAllowedURL, KeyInternal, KeyUnknownCommand, KeyProcessing,
	KeyHelp, KeyHelpPlain, KeyHelpInline, KeyFailedFor, KeyFailAliasTaken,
	KeyFailUnavail, KeyFailNoResponse, KeyStats, KeyBtnOpen, KeyBtnQR, KeyBtnHelp,
	KeyInlineTitle, KeyCmdShort, KeyCmdQR, KeyCmdHelp, KeyCmdStats,
}

// BotFacade composes usecases into high-level bot commands.
// Keep the facade methods returning strings so the Telegram adapter just forwards them to the chat.
type BotFacade struct {
	ShortenUC ShortenUseCaseIface
	EncodeQR  QREncoder

	tr     Translator
	inline bool
	log    *zerolog.Logger
}

// ShortReply is the chat answer to a shorten request. Links holds the
// successful short URLs in reply order.
type ShortReply struct {
	Text  string
	Links []string
}

func NewBotFacade(shortenUC ShortenUseCaseIface, tr Translator, encodeQR QREncoder, inlineMode bool, logger *zerolog.Logger) *BotFacade {
	if logger == nil {
		logger = logging.Nop()
	}
	return &BotFacade{ShortenUC: shortenUC, EncodeQR: encodeQR, tr: tr, inline: inlineMode, log: logger}
}

// T renders a locale key for the adapter (buttons, menu, fixed replies).
func (b *BotFacade) T(key string, args ...interface{}) string {
	return b.tr.T(key, args...)
}

// HandleHelp returns the usage text. Available to everyone.
func (b *BotFacade) HandleHelp() string {
	if b.inline {
		return b.tr.T(KeyHelp, b.tr.T(KeyHelpInline))
	}
	return b.tr.T(KeyHelp, b.tr.T(KeyHelpPlain))
}

// HandleProgress returns the acknowledgment sent before a plain-text batch
// of more than one URL. ok is false when no acknowledgment is due.
func (b *BotFacade) HandleProgress(req model.IncomingRequest) (text string, ok bool) {
	if req.Explicit || b.ShortenUC.Authorize(req.SenderID) != nil {
		return "", false
	}
	urls, err := b.ShortenUC.Plan(req)
	if err != nil || len(urls) < 2 {
		return "", false
	}
	return b.tr.T(KeyProcessing, len(urls)), true
}

// HandleShort runs a shorten request. The returned reply is always sendable;
// the error is the request-level failure, if any, for logging.
func (b *BotFacade) HandleShort(ctx context.Context, req model.IncomingRequest) (ShortReply, error) {
	if req.Explicit && strings.TrimSpace(req.Text) == "" {
		if err := b.ShortenUC.Authorize(req.SenderID); err != nil {
			return ShortReply{Text: b.tr.T(KeyUnauthorized)}, err
		}
		return ShortReply{Text: b.tr.T(KeyShortUsage)}, nil
	}

	results, err := b.ShortenUC.Shorten(ctx, req)
	if err != nil {
		return ShortReply{Text: b.DescribeError(err)}, err
	}

	var (
		lines []string
		links []string
	)
	for _, r := range results {
		if r.Success {
			lines = append(lines, r.ShortURL)
			links = append(links, r.ShortURL)
			continue
		}
		lines = append(lines, b.DescribeFailure(r))
	}
	return ShortReply{Text: strings.Join(lines, "\n"), Links: links}, nil
}

// HandleInline shortens the first URL of an inline query. ok is false when
// nothing should be offered.
func (b *BotFacade) HandleInline(ctx context.Context, senderID int64, query string) (short string, ok bool) {
	if !b.inline {
		return "", false
	}
	urls := b.ShortenUC.ExtractURLs(query)
	if len(urls) == 0 {
		return "", false
	}
	results, err := b.ShortenUC.Shorten(ctx, model.IncomingRequest{SenderID: senderID, Text: urls[0], Explicit: true})
	if err != nil || len(results) == 0 || !results[0].Success {
		if err == nil && len(results) > 0 {
			err = results[0].Err
		}
		logging.With(ctx, b.log).Debug().Err(err).Msg("inline query not answered")
		return "", false
	}
	return results[0].ShortURL, true
}

// HandleQR validates raw and renders it as a PNG with the URL as caption.
func (b *BotFacade) HandleQR(ctx context.Context, senderID int64, raw string) ([]byte, string, error) {
	if err := b.ShortenUC.Authorize(senderID); err != nil {
		return nil, "", err
	}
	u, err := b.ShortenUC.ValidateURL(raw)
	if err != nil {
		return nil, "", err
	}
	if b.EncodeQR == nil {
		return nil, "", errors.New("qr encoder not available")
	}
	png, err := b.EncodeQR(u)
	if err != nil {
		return nil, "", fmt.Errorf("encode qr: %w", err)
	}
	return png, u, nil
}

// HandleStats returns the in-process counters. Admin only.
func (b *BotFacade) HandleStats(ctx context.Context, senderID int64) (string, error) {
	if !b.ShortenUC.IsAdmin(senderID) {
		return "", domain.ErrUnauthorized
	}
	st := b.ShortenUC.Stats()
	return b.tr.T(KeyStats,
		st.Started.UTC().Format(time.RFC1123),
		st.Requests, st.Shortened, st.Failed, st.Senders,
	), nil
}

// DescribeError maps request-level errors to the chat text.
func (b *BotFacade) DescribeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrUnauthorized):
		return b.tr.T(KeyUnauthorized)
	case errors.Is(err, domain.ErrInvalidURL):
		return b.tr.T(KeyInvalidURL)
	case errors.Is(err, domain.ErrInvalidAlias):
		return b.tr.T(KeyInvalidAlias)
	case errors.Is(err, domain.ErrNoURL):
		return b.tr.T(KeyNoURL)
	case errors.Is(err, domain.ErrDomainNotAllowed):
		return b.tr.T(KeyNoAllowedURL)
	}
	return b.tr.T(KeyInternal)
}

// DescribeFailure renders one failed URL of a batch. Empty for successes.
func (b *BotFacade) DescribeFailure(r model.ShortenResult) string {
	if r.Success || r.Err == nil {
		return ""
	}
	var (
		se     *domain.ShortenerError
		reason string
	)
	switch {
	case errors.Is(r.Err, domain.ErrAliasTaken):
		reason = b.tr.T(KeyFailAliasTaken)
	case errors.Is(r.Err, domain.ErrCircuitOpen):
		reason = b.tr.T(KeyFailUnavail)
	case errors.Is(r.Err, domain.ErrRetriesExhausted):
		reason = b.tr.T(KeyFailNoResponse)
	case errors.As(r.Err, &se) && se.Message != "":
		reason = strings.TrimSpace(se.Message)
	default:
		reason = r.Err.Error()
	}
	return b.tr.T(KeyFailedFor, r.LongURL, reason)
}

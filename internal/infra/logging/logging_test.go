//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"telegram-link-shortener/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWith_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	ctx := WithTraceID(context.Background(), "01HTRACE")
	ctx = WithTgID(ctx, 42)
	ctx = WithChatID(ctx, 7)
	With(ctx, base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "01HTRACE", line["trace_id"])
	assert.EqualValues(t, 42, line["tg_id"])
	assert.EqualValues(t, 7, line["chat_id"])
	assert.Equal(t, "hello", line["message"])
}

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newWithWriter(config.LogConfig{Level: "loud"}, false, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	l.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "***", Redact("short", false))
	assert.Equal(t, "abcd...yz", Redact("abcdefghijklmnopqrstuvwxyz", false))
	assert.Equal(t, "plain", Redact("plain", true))
}

package shortener

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"telegram-link-shortener/internal/domain"
)

// shortURLKeys are the payload fields AdLinkFly-compatible APIs use for the result.
var shortURLKeys = []string{"shortenedUrl", "short", "short_url", "url"}

// parseResponse interprets an HTTP answer of the shortener API.
func parseResponse(status int, body []byte) (string, error) {
	text := strings.TrimSpace(string(body))

	if status >= http.StatusInternalServerError {
		return "", &domain.ShortenerError{Status: status, Message: "server error", Transient: true}
	}
	if status < 200 || status >= 300 {
		return "", rejected(status, apiMessage(body, text))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		// Some installations answer with the bare short link.
		if strings.HasPrefix(text, "http") && !strings.ContainsAny(text, " \n\t") {
			return text, nil
		}
		return "", &domain.ShortenerError{Status: status, Message: "unexpected response format", Err: err}
	}

	if st, ok := payload["status"].(string); ok && !strings.EqualFold(st, "success") {
		msg := messageOf(payload)
		if msg == "" {
			msg = fmt.Sprintf("status %q", st)
		}
		return "", rejected(status, msg)
	}

	for _, k := range shortURLKeys {
		if s, ok := payload[k].(string); ok && strings.HasPrefix(s, "http") {
			return s, nil
		}
	}
	return "", &domain.ShortenerError{Status: status, Message: "short url missing in response"}
}

// messageOf returns the API's error message. AdLinkFly sends either a string
// or a list of strings.
func messageOf(payload map[string]any) string {
	switch m := payload["message"].(type) {
	case string:
		return strings.TrimSpace(m)
	case []any:
		parts := make([]string, 0, len(m))
		for _, p := range m {
			if s, ok := p.(string); ok && s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func apiMessage(body []byte, text string) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if m := messageOf(payload); m != "" {
			return m
		}
	}
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return "request rejected"
	}
	return text
}

// rejected builds the permanent error for an API refusal.
func rejected(status int, msg string) *domain.ShortenerError {
	se := &domain.ShortenerError{Status: status, Message: msg}
	if isAliasConflict(msg) {
		se.Err = domain.ErrAliasTaken
	}
	return se
}

func isAliasConflict(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "alias") &&
		(strings.Contains(m, "exist") || strings.Contains(m, "taken") || strings.Contains(m, "already"))
}

package model

import "time"

// IncomingRequest is one shorten request built from an inbound Telegram message.
// Explicit is true for /short, false for plain text messages.
type IncomingRequest struct {
	SenderID int64
	ChatID   int64
	Text     string
	Alias    string
	Explicit bool
}

// ShortenResult is the outcome for a single URL.
type ShortenResult struct {
	LongURL  string
	ShortURL string
	Success  bool
	Err      error
}

func NewSuccess(longURL, shortURL string) ShortenResult {
	return ShortenResult{LongURL: longURL, ShortURL: shortURL, Success: true}
}

func NewFailure(longURL string, err error) ShortenResult {
	return ShortenResult{LongURL: longURL, Err: err}
}

// Stats are in-process counters since Started. They reset on restart.
type Stats struct {
	Requests  int64
	Shortened int64
	Failed    int64
	Senders   int64
	Started   time.Time
}

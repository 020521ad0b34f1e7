package adapter

import "context"

// Shortener is the port for the external link-shortening API.
type Shortener interface {
	// Shorten returns the short URL for longURL. alias may be empty.
	Shorten(ctx context.Context, longURL, alias string) (string, error)
}

// File: internal/usecase/shorten_uc.go
package usecase

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"telegram-link-shortener/internal/domain"
	"telegram-link-shortener/internal/domain/model"
	"telegram-link-shortener/internal/domain/ports/adapter"
	"telegram-link-shortener/internal/infra/logging"
)

// Compile-time check
var _ ShortenUseCase = (*shortenUC)(nil)

type ShortenUseCase interface {
	Authorize(senderID int64) error
	IsAdmin(senderID int64) bool
	ValidateURL(raw string) (string, error)
	ValidateAlias(alias string) error
	ExtractURLs(text string) []string
	Plan(req model.IncomingRequest) ([]string, error)
	Shorten(ctx context.Context, req model.IncomingRequest) ([]model.ShortenResult, error)
	Stats() model.Stats
}

// Policy holds the request rules. Empty lists mean "no restriction".
type Policy struct {
	AllowedUsers     []int64
	Admins           []int64
	MaxBatch         int
	WhitelistDomains []string
	BlacklistDomains []string
}

var (
	urlPattern   = regexp.MustCompile(`(?i)https?://\S+`)
	aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,30}$`)
)

type shortenUC struct {
	shortener adapter.Shortener
	allowed   map[int64]struct{}
	admins    map[int64]struct{}
	maxBatch  int
	whitelist map[string]struct{}
	blacklist map[string]struct{}

	requests  atomic.Int64
	shortened atomic.Int64
	failed    atomic.Int64
	senders   sync.Map
	nSenders  atomic.Int64
	started   time.Time

	log *zerolog.Logger
}

func NewShortenUseCase(shortener adapter.Shortener, p Policy, logger *zerolog.Logger) *shortenUC {
	if logger == nil {
		logger = logging.Nop()
	}
	maxBatch := p.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 5
	}
	return &shortenUC{
		shortener: shortener,
		allowed:   idSet(p.AllowedUsers),
		admins:    idSet(p.Admins),
		maxBatch:  maxBatch,
		whitelist: domainSet(p.WhitelistDomains),
		blacklist: domainSet(p.BlacklistDomains),
		started:   time.Now(),
		log:       logger,
	}
}

func (s *shortenUC) Authorize(senderID int64) error {
	if len(s.allowed) == 0 {
		return nil
	}
	if _, ok := s.allowed[senderID]; ok {
		return nil
	}
	return domain.ErrUnauthorized
}

// IsAdmin is false for everyone when no admins are configured.
func (s *shortenUC) IsAdmin(senderID int64) bool {
	_, ok := s.admins[senderID]
	return ok
}

// ValidateURL accepts absolute http/https URLs with a host.
func (s *shortenUC) ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return "", domain.ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return "", domain.ErrInvalidURL
	}
	return raw, nil
}

func (s *shortenUC) ValidateAlias(alias string) error {
	if !aliasPattern.MatchString(alias) {
		return domain.ErrInvalidAlias
	}
	return nil
}

func (s *shortenUC) ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Shorten handles one inbound request. Request-level problems are returned as
// the error; per-URL outcomes, including API failures, are in the results.
func (s *shortenUC) Shorten(ctx context.Context, req model.IncomingRequest) ([]model.ShortenResult, error) {
	l := logging.With(ctx, s.log)
	defer logging.TraceDuration(l, "ShortenUC.Shorten")()

	if err := s.Authorize(req.SenderID); err != nil {
		l.Info().Int64("sender", req.SenderID).Msg("unauthorized shorten request")
		return nil, err
	}
	s.requests.Add(1)
	if _, seen := s.senders.LoadOrStore(req.SenderID, struct{}{}); !seen {
		s.nSenders.Add(1)
	}

	urls, err := s.Plan(req)
	if err != nil {
		return nil, err
	}

	results := make([]model.ShortenResult, 0, len(urls))
	for _, u := range urls {
		short, err := s.shortener.Shorten(ctx, u, req.Alias)
		if err != nil {
			s.failed.Add(1)
			l.Warn().Err(err).Str("url", u).Msg("shorten failed")
			results = append(results, model.NewFailure(u, err))
			continue
		}
		s.shortened.Add(1)
		results = append(results, model.NewSuccess(u, short))
	}
	return results, nil
}

// Plan returns the validated, filtered and capped URL list of req without
// calling the shortener. Authorization is left to the caller.
func (s *shortenUC) Plan(req model.IncomingRequest) ([]string, error) {
	var candidates []string
	if req.Explicit {
		u, err := s.ValidateURL(req.Text)
		if err != nil {
			return nil, err
		}
		if req.Alias != "" {
			if err := s.ValidateAlias(req.Alias); err != nil {
				return nil, err
			}
		}
		candidates = []string{u}
	} else {
		if req.Alias != "" {
			return nil, domain.ErrInvalidAlias
		}
		for _, raw := range s.ExtractURLs(req.Text) {
			if u, err := s.ValidateURL(raw); err == nil {
				candidates = append(candidates, u)
			}
		}
		if len(candidates) == 0 {
			return nil, domain.ErrNoURL
		}
	}

	allowed := candidates[:0]
	for _, u := range candidates {
		if s.domainAllowed(u) {
			allowed = append(allowed, u)
		}
	}
	if len(allowed) == 0 {
		return nil, domain.ErrDomainNotAllowed
	}
	if len(allowed) > s.maxBatch {
		allowed = allowed[:s.maxBatch]
	}
	return allowed, nil
}

func (s *shortenUC) domainAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if len(s.whitelist) > 0 {
		if _, ok := s.whitelist[host]; !ok {
			return false
		}
	}
	_, blocked := s.blacklist[host]
	return !blocked
}

func (s *shortenUC) Stats() model.Stats {
	return model.Stats{
		Requests:  s.requests.Load(),
		Shortened: s.shortened.Load(),
		Failed:    s.failed.Load(),
		Senders:   s.nSenders.Load(),
		Started:   s.started,
	}
}

func idSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func domainSet(domains []string) map[string]struct{} {
	m := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			m[d] = struct{}{}
		}
	}
	return m
}

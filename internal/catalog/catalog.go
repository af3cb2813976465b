package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

const groupsCacheKey = "catalog:ticket-groups"

// Source is the backend side of the catalog.
type Source interface {
	TicketGroups(ctx context.Context) ([]models.TicketGroup, error)
	TicketProfile(ctx context.Context, ticketGroupID int64) (*models.TicketProfile, error)
	TicketVariants(ctx context.Context, ticketGroupID int64, date time.Time) ([]models.TicketVariant, error)
}

type Config struct {
	CacheTTL    time.Duration
	RetryDelay  time.Duration
	LoadCeiling time.Duration
	ImageBase   string
}

// Service serves the ticket catalog. The group list is read through a
// redis cache when one is configured; cache trouble falls back to the
// backend.
type Service struct {
	src    Source
	rdb    redis.Cmdable
	cfg    Config
	logger *slog.Logger
}

func NewService(src Source, rdb redis.Cmdable, cfg Config) *Service {
	return &Service{src: src, rdb: rdb, cfg: cfg, logger: slog.Default()}
}

// ResolveImage joins a relative image path onto the image base URL.
func (s *Service) ResolveImage(path string) string {
	if path == "" || s.cfg.ImageBase == "" {
		return path
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return strings.TrimRight(s.cfg.ImageBase, "/") + "/" + strings.TrimLeft(path, "/")
}

func (s *Service) resolveGroup(g *models.TicketGroup) {
	g.ImageURL = s.ResolveImage(g.ImageURL)
}

// Groups returns the ticket group list.
func (s *Service) Groups(ctx context.Context) ([]models.TicketGroup, error) {
	if groups, ok := s.cached(ctx); ok {
		return groups, nil
	}

	groups, err := s.src.TicketGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("ticket groups: %w", err)
	}
	for i := range groups {
		s.resolveGroup(&groups[i])
	}
	s.store(ctx, groups)
	return groups, nil
}

func (s *Service) cached(ctx context.Context) ([]models.TicketGroup, bool) {
	if s.rdb == nil || s.cfg.CacheTTL <= 0 {
		return nil, false
	}

	data, err := s.rdb.Get(ctx, groupsCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("catalog cache read", "error", err)
		}
		return nil, false
	}

	var groups []models.TicketGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		s.logger.Warn("catalog cache decode", "error", err)
		return nil, false
	}
	return groups, true
}

func (s *Service) store(ctx context.Context, groups []models.TicketGroup) {
	if s.rdb == nil || s.cfg.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(groups)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, groupsCacheKey, data, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("catalog cache write", "error", err)
	}
}

// Invalidate drops the cached group list.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, groupsCacheKey).Err()
}

// LoadGroups is the initial category load. A failed attempt is retried once
// after RetryDelay. Whatever happens the caller gets an answer within
// LoadCeiling; past it the error wraps status.ErrLoadCeiling.
func (s *Service) LoadGroups(ctx context.Context) ([]models.TicketGroup, error) {
	type result struct {
		groups []models.TicketGroup
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		groups, err := s.Groups(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.Info("ticket groups load failed, retrying", "error", err, "delay", s.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				done <- result{err: err}
				return
			case <-time.After(s.cfg.RetryDelay):
			}
			groups, err = s.Groups(ctx)
		}
		done <- result{groups: groups, err: err}
	}()

	var ceiling <-chan time.Time
	if s.cfg.LoadCeiling > 0 {
		timer := time.NewTimer(s.cfg.LoadCeiling)
		defer timer.Stop()
		ceiling = timer.C
	}

	select {
	case res := <-done:
		return res.groups, res.err
	case <-ceiling:
		return nil, fmt.Errorf("after %s: %w", s.cfg.LoadCeiling, status.ErrLoadCeiling)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) Profile(ctx context.Context, ticketGroupID int64) (*models.TicketProfile, error) {
	p, err := s.src.TicketProfile(ctx, ticketGroupID)
	if err != nil {
		return nil, fmt.Errorf("ticket profile %d: %w", ticketGroupID, err)
	}
	s.resolveGroup(&p.TicketGroup)
	for i, img := range p.Gallery {
		p.Gallery[i] = s.ResolveImage(img)
	}
	return p, nil
}

func (s *Service) Variants(ctx context.Context, ticketGroupID int64, date time.Time) ([]models.TicketVariant, error) {
	variants, err := s.src.TicketVariants(ctx, ticketGroupID, date)
	if err != nil {
		return nil, fmt.Errorf("ticket variants %d: %w", ticketGroupID, err)
	}
	return variants, nil
}

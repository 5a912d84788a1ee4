// Package service provides business logic for link management.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
)

// Service errors.
var (
	ErrInvalidDestination = errors.New("invalid destination URL")
	ErrMissingSource      = errors.New("utm_source is required")
	ErrDomainMismatch     = errors.New("destination is outside the site domain")
	ErrLinkNotFound       = errors.New("link not found")
	ErrURLTooLong         = errors.New("destination URL too long")
)

const (
	maxDestinationLength = 2048

	// Short codes: 6 symbols from a 36-symbol alphabet. Collisions retried
	// until a never-before-issued code is found.
	codeLength     = 6
	codeAlphabet   = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeRetries = 5
)

// LinkService handles link registry business logic.
type LinkService struct {
	repo    *repository.Repository
	siteURL string
	baseURL string
	metrics metrics.Recorder
}

// NewLinkService creates a new LinkService.
func NewLinkService(repo *repository.Repository, siteURL, baseURL string, recorder metrics.Recorder) *LinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &LinkService{
		repo:    repo,
		siteURL: siteURL,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		metrics: recorder,
	}
}

// BaseURL returns the configured short link base URL.
func (s *LinkService) BaseURL() string {
	return s.baseURL
}

// CreateLinkInput defines input for creating a link.
type CreateLinkInput struct {
	Destination string
	Utm         model.UtmParams
	CreatedBy   string
}

// CreateLink validates input and creates a new tracked link. No link is
// created on any validation failure.
func (s *LinkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if err := s.validateDestination(input.Destination); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Utm.Source) == "" {
		return nil, ErrMissingSource
	}

	// Two concurrent creates can race past the existence check and collide
	// on the unique index, so the insert itself retries on ErrCodeExists.
	var link *model.Link
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := s.generateUniqueCode(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		now := time.Now().UTC()
		link = &model.Link{
			ID:          ulid.Make().String(),
			ShortCode:   code,
			Destination: input.Destination,
			Utm:         input.Utm,
			CreatedBy:   input.CreatedBy,
			IsActive:    true,
			Revenue:     decimal.Zero,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err = s.repo.CreateLink(ctx, link)
		if err == nil {
			s.metrics.IncLinkCreated()
			return link, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, fmt.Errorf("failed to create link: %w", err)
		}
	}

	return nil, fmt.Errorf("failed to create link: no unique code after %d attempts", maxCodeRetries)
}

// GetLink retrieves a link by ID.
func (s *LinkService) GetLink(ctx context.Context, id string) (*model.Link, error) {
	link, err := s.repo.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	return link, nil
}

// UpdateLinkInput defines input for updating a link. Nil fields are left
// unchanged; short code, counters and created_at are immutable.
type UpdateLinkInput struct {
	ID          string
	Destination *string
	Source      *string
	Medium      *string
	Campaign    *string
	Term        *string
}

// UpdateLink updates a link's mutable fields with the same validation as
// create.
func (s *LinkService) UpdateLink(ctx context.Context, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.repo.GetLinkByID(ctx, input.ID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if input.Destination != nil {
		if err := s.validateDestination(*input.Destination); err != nil {
			return nil, err
		}
		link.Destination = *input.Destination
	}
	if input.Source != nil {
		if strings.TrimSpace(*input.Source) == "" {
			return nil, ErrMissingSource
		}
		link.Utm.Source = *input.Source
	}
	if input.Medium != nil {
		link.Utm.Medium = *input.Medium
	}
	if input.Campaign != nil {
		link.Utm.Campaign = *input.Campaign
	}
	if input.Term != nil {
		link.Utm.Term = *input.Term
	}

	if err := s.repo.UpdateLink(ctx, link); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	s.metrics.IncLinkUpdated()

	return link, nil
}

// DeactivateLink soft-deletes a link. Idempotent.
func (s *LinkService) DeactivateLink(ctx context.Context, id string) error {
	if err := s.repo.DeactivateLink(ctx, id); err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return err
	}

	s.metrics.IncLinkDeactivated()

	return nil
}

// BulkDeactivate soft-deletes every link in ids, returning the count changed.
func (s *LinkService) BulkDeactivate(ctx context.Context, ids []string) (int64, error) {
	count, err := s.repo.BulkDeactivate(ctx, ids)
	if err != nil {
		return 0, err
	}

	for i := int64(0); i < count; i++ {
		s.metrics.IncLinkDeactivated()
	}

	return count, nil
}

// ListLinksInput defines input for listing links.
type ListLinksInput struct {
	Source     string
	Campaign   string
	ActiveOnly bool
	Cursor     string
	Limit      int
}

// ListLinksOutput defines output for listing links.
type ListLinksOutput struct {
	Links      []*model.Link
	NextCursor string
	HasMore    bool
}

// ListLinks retrieves a paginated list of links.
func (s *LinkService) ListLinks(ctx context.Context, input ListLinksInput) (*ListLinksOutput, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	filter := repository.LinkFilter{
		Source:     input.Source,
		Campaign:   input.Campaign,
		ActiveOnly: input.ActiveOnly,
	}

	links, nextCursor, err := s.repo.ListLinks(ctx, filter, input.Cursor, input.Limit)
	if err != nil {
		return nil, err
	}

	return &ListLinksOutput{
		Links:      links,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// validateDestination checks the URL shape and enforces the same-host rule:
// cross-domain destinations are rejected outright (a safety rule, links only
// ever point back into the site).
func (s *LinkService) validateDestination(destination string) error {
	if destination == "" {
		return ErrInvalidDestination
	}
	if len(destination) > maxDestinationLength {
		return ErrURLTooLong
	}

	parsed, err := url.Parse(destination)
	if err != nil {
		return ErrInvalidDestination
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidDestination
	}
	if parsed.Host == "" {
		return ErrInvalidDestination
	}

	if !model.SameHost(destination, s.siteURL) {
		return ErrDomainMismatch
	}

	return nil
}

// generateUniqueCode draws random codes until one is free. Codes are never
// reused, so the existence check covers inactive links too.
func (s *LinkService) generateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := randomCode(codeLength)
		if err != nil {
			return "", err
		}

		exists, err := s.repo.ShortCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("no unique code after %d attempts", maxCodeRetries)
}

// randomCode generates a random code from the alphabet.
func randomCode(length int) (string, error) {
	result := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))

	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random number: %w", err)
		}
		result[i] = codeAlphabet[n.Int64()]
	}

	return string(result), nil
}

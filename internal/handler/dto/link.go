// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/linktrail/linktrail/internal/model"
)

// CreateLinkRequest represents the request body for creating a link.
type CreateLinkRequest struct {
	Destination string `json:"destination"`
	Source      string `json:"utm_source"`
	Medium      string `json:"utm_medium,omitempty"`
	Campaign    string `json:"utm_campaign,omitempty"`
	Term        string `json:"utm_term,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// UpdateLinkRequest represents the request body for updating a link.
type UpdateLinkRequest struct {
	Destination *string `json:"destination,omitempty"`
	Source      *string `json:"utm_source,omitempty"`
	Medium      *string `json:"utm_medium,omitempty"`
	Campaign    *string `json:"utm_campaign,omitempty"`
	Term        *string `json:"utm_term,omitempty"`
}

// BulkDeactivateRequest represents the request body for bulk deactivation.
type BulkDeactivateRequest struct {
	IDs []string `json:"ids"`
}

// BulkDeactivateResponse reports how many links were deactivated.
type BulkDeactivateResponse struct {
	Deactivated int64 `json:"deactivated"`
}

// LinkResponse represents a link in API responses.
type LinkResponse struct {
	ID             string    `json:"id"`
	ShortCode      string    `json:"short_code"`
	ShortURL       string    `json:"short_url"`
	Destination    string    `json:"destination"`
	Source         string    `json:"utm_source"`
	Medium         string    `json:"utm_medium,omitempty"`
	Campaign       string    `json:"utm_campaign,omitempty"`
	Term           string    `json:"utm_term,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
	IsActive       bool      `json:"is_active"`
	Clicks         int64     `json:"clicks"`
	Conversions    int64     `json:"conversions"`
	Revenue        string    `json:"revenue"`
	ConversionRate float64   `json:"conversion_rate"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LinkListResponse represents a paginated list of links.
type LinkListResponse struct {
	Data       []LinkResponse `json:"data"`
	Pagination *Pagination    `json:"pagination"`
}

// Pagination provides cursor-based pagination info.
type Pagination struct {
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToLinkResponse converts a Link model to LinkResponse DTO.
func ToLinkResponse(link *model.Link, baseURL string) *LinkResponse {
	return &LinkResponse{
		ID:             link.ID,
		ShortCode:      link.ShortCode,
		ShortURL:       baseURL + "/" + link.ShortCode,
		Destination:    link.Destination,
		Source:         link.Utm.Source,
		Medium:         link.Utm.Medium,
		Campaign:       link.Utm.Campaign,
		Term:           link.Utm.Term,
		CreatedBy:      link.CreatedBy,
		IsActive:       link.IsActive,
		Clicks:         link.Clicks,
		Conversions:    link.Conversions,
		Revenue:        link.Revenue.String(),
		ConversionRate: link.ConversionRate(),
		CreatedAt:      link.CreatedAt,
		UpdatedAt:      link.UpdatedAt,
	}
}

// ToLinkListResponse converts a slice of Link models to LinkListResponse.
func ToLinkListResponse(links []*model.Link, baseURL string, nextCursor string, hasMore bool) *LinkListResponse {
	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = *ToLinkResponse(link, baseURL)
	}
	return &LinkListResponse{
		Data: responses,
		Pagination: &Pagination{
			NextCursor: nextCursor,
			HasMore:    hasMore,
		},
	}
}

// Package model defines domain entities for the application.
package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Link represents a tracked marketing short link.
type Link struct {
	ID          string `json:"id"`
	ShortCode   string `json:"short_code"`
	Destination string `json:"destination"`

	// Campaign parameters appended to the destination on redirect.
	Utm UtmParams `json:"utm"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// IsActive is the soft-delete flag. Codes are never reused, so a
	// deactivated link keeps its short code forever.
	IsActive bool `json:"is_active"`

	// Server-authoritative counters, incremented only via atomic SQL updates.
	Clicks      int64           `json:"clicks"`
	Conversions int64           `json:"conversions"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// ConversionRate returns conversions/clicks as a percentage.
func (l *Link) ConversionRate() float64 {
	if l.Clicks == 0 {
		return 0
	}
	return float64(l.Conversions) / float64(l.Clicks) * 100
}

// AverageOrderValue returns revenue divided by conversions.
func (l *Link) AverageOrderValue() decimal.Decimal {
	if l.Conversions == 0 {
		return decimal.Zero
	}
	return l.Revenue.Div(decimal.NewFromInt(l.Conversions))
}

// UtmParams is the typed bag of campaign parameters carried by a link.
// utm_content is intentionally absent: it is never propagated.
type UtmParams struct {
	Source   string `json:"source"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
}

// IsZero reports whether no UTM field is set.
func (u UtmParams) IsZero() bool {
	return u.Source == "" && u.Medium == "" && u.Campaign == "" && u.Term == ""
}

// Apply appends the non-empty UTM fields to the query string of rawURL.
func (u UtmParams) Apply(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	q := parsed.Query()
	if u.Source != "" {
		q.Set("utm_source", u.Source)
	}
	if u.Medium != "" {
		q.Set("utm_medium", u.Medium)
	}
	if u.Campaign != "" {
		q.Set("utm_campaign", u.Campaign)
	}
	if u.Term != "" {
		q.Set("utm_term", u.Term)
	}
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// SameHost reports whether destination shares a host with siteURL,
// treating a "www." prefix as equivalent.
func SameHost(destination, siteURL string) bool {
	destHost := hostOf(destination)
	siteHost := hostOf(siteURL)
	if destHost == "" || siteHost == "" {
		return false
	}
	return stripWWW(destHost) == stripWWW(siteHost)
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

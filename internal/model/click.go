package model

import "time"

// DeviceType is the coarse device classification parsed from the user agent.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
)

// Click represents one recorded visit attributable to a Link.
type Click struct {
	ID     string `json:"id"` // ULID (time-sortable)
	LinkID string `json:"link_id"`

	OccurredAt time.Time `json:"occurred_at"`

	// Request metadata
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"` // truncated to 500 chars
	Referrer  string `json:"referrer,omitempty"`   // truncated to 500 chars
	Page      string `json:"page,omitempty"`       // landing path on the destination

	// Parsed user-agent families
	DeviceType DeviceType `json:"device_type"`
	Browser    string     `json:"browser,omitempty"`
	OS         string     `json:"os,omitempty"`

	// SessionID is link-scoped: the same browser visiting two different
	// links gets two different session ids.
	SessionID string `json:"session_id"`

	// IsBot marks audit rows written for crawler traffic. Bot clicks never
	// increment link counters and never seed attribution signals.
	IsBot bool `json:"is_bot,omitempty"`

	// Conversion state. Converted flips false->true at most once and
	// OrderID is set in the same update.
	Converted bool   `json:"converted"`
	OrderID   string `json:"order_id,omitempty"`

	// Optional geo
	CountryCode string `json:"country_code,omitempty"` // ISO 3166-1 alpha-2
	City        string `json:"city,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ClickExportRow is one line of the click export, in the fixed column order
// timestamp, page, country, city, device, browser, os, source, referrer.
type ClickExportRow struct {
	Timestamp time.Time
	Page      string
	Country   string
	City      string
	Device    string
	Browser   string
	OS        string
	Source    string
	Referrer  string
}

// ExportColumns is the header row for click exports.
var ExportColumns = []string{
	"timestamp", "page", "country", "city", "device", "browser", "os", "source", "referrer",
}

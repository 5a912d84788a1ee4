package dto

// ConversionRequest is the conversion trigger payload, delivered by order
// and donation lifecycle events.
type ConversionRequest struct {
	OrderID    string `json:"order_id"`
	Email      string `json:"email,omitempty"`
	OrderTotal string `json:"order_total"`

	// Optional signals a server-side caller can pass when the browser's
	// cookies are not on the request itself.
	SessionID   string `json:"session_id,omitempty"`
	LinkID      string `json:"link_id,omitempty"`
	UtmSource   string `json:"utm_source,omitempty"`
	UtmCampaign string `json:"utm_campaign,omitempty"`
}

// ConversionResponse reports the attribution outcome for a trigger.
type ConversionResponse struct {
	OrderID    string `json:"order_id"`
	Attributed bool   `json:"attributed"`
	Duplicate  bool   `json:"duplicate,omitempty"`
	LinkID     string `json:"link_id,omitempty"`
	ClickID    string `json:"click_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// CheckoutRequest captures a checkout start for email-keyed attribution.
type CheckoutRequest struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id,omitempty"`
}

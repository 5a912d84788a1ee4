package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttributionRecord is a cached hint stored in the identity signal store
// under secondary keys (session id, IP hash, fingerprint, email hash).
// Records are hints, not ground truth: the referenced link may have been
// deactivated since the record was written, so every reader revalidates.
type AttributionRecord struct {
	LinkID     string    `json:"link_id"`
	ClickID    string    `json:"click_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Utm        UtmParams `json:"utm"`
	CapturedAt time.Time `json:"captured_at"`
}

// ConversionEvent is the ephemeral input to attribution: an order or
// donation together with the identity signals present on the request that
// delivered it. It is never persisted as its own entity.
type ConversionEvent struct {
	OrderID    string
	Email      string
	OrderTotal decimal.Decimal

	// Signals, in decreasing trust order.
	StoredLinkID string // link id already attached to the order by checkout capture
	CookieLinkID string // link_id cookie on the request
	CookieClick  string // click_id cookie on the request
	SessionID    string // session id cookie or explicit session parameter
	IPAddress    string
	Fingerprint  string // device fingerprint hash

	// UTM values previously recorded on the order itself, used by the
	// last-resort heuristic match.
	OrderUtm UtmParams
}

// Resolution is the outcome of a successful attribution lookup.
// A nil *Resolution means the conversion stays unattributed.
type Resolution struct {
	LinkID  string
	ClickID string // optional: exact click when the signal carried one
	Source  ResolutionSource
}

// ResolutionSource names which signal won the precedence chain.
type ResolutionSource string

const (
	ResolvedByOrder       ResolutionSource = "order"
	ResolvedByCookie      ResolutionSource = "cookie"
	ResolvedBySession     ResolutionSource = "session"
	ResolvedByIP          ResolutionSource = "ip"
	ResolvedByFingerprint ResolutionSource = "fingerprint"
	ResolvedByEmail       ResolutionSource = "email"
	ResolvedByUtmMatch    ResolutionSource = "utm_match"
)

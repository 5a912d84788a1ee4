// Package metrics provides lightweight hooks for instrumentation.
package metrics

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect path
	IncClickRecorded()
	IncClickDeduplicated()
	IncBotClick()
	IncRedirectNotFound()

	// Link management
	IncLinkCreated()
	IncLinkUpdated()
	IncLinkDeactivated()

	// Attribution
	IncResolution(source string) // which signal won the precedence chain
	IncUnresolved()
	IncConversionRecorded()
	IncConversionDuplicate()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	ClicksRecorded       int64            `json:"clicks_recorded"`
	ClicksDeduplicated   int64            `json:"clicks_deduplicated"`
	BotClicks            int64            `json:"bot_clicks"`
	RedirectNotFound     int64            `json:"redirect_not_found"`
	LinksCreated         int64            `json:"links_created"`
	LinksUpdated         int64            `json:"links_updated"`
	LinksDeactivated     int64            `json:"links_deactivated"`
	Resolutions          map[string]int64 `json:"resolutions"`
	Unresolved           int64            `json:"unresolved"`
	ConversionsRecorded  int64            `json:"conversions_recorded"`
	ConversionsDuplicate int64            `json:"conversions_duplicate"`
}

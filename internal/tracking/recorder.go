package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linktrail/linktrail/internal/cache"
	"github.com/linktrail/linktrail/internal/geo"
	"github.com/linktrail/linktrail/internal/metrics"
	"github.com/linktrail/linktrail/internal/model"
	"github.com/linktrail/linktrail/internal/repository"
	"github.com/linktrail/linktrail/internal/useragent"
)

// ErrLinkNotFound is returned when the short code is unknown or the link is
// inactive. Terminal for the request: no click is written.
var ErrLinkNotFound = repository.ErrLinkNotFound

const maxMetaLength = 500

// GeoResolver resolves a best-effort location for the visit.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string, headers http.Header) geo.Location
}

// VisitRequest carries everything the recorder needs from an inbound visit.
// Explicit value, no ambient request state.
type VisitRequest struct {
	ShortCode      string
	IP             string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	AcceptEncoding string
	Headers        http.Header
}

// RedirectDecision is the recorder's verdict for a visit.
type RedirectDecision struct {
	// Destination is the link's URL with its UTM parameters and a
	// cache-busting timestamp appended.
	Destination string

	// ClientSide requests a script-based redirect page instead of a 302.
	// Some social in-app browsers mishandle HTTP redirects when handing
	// off to an external app.
	ClientSide bool

	// Cookies to set on the visitor. Empty for bots and deduplicated
	// repeat visits.
	Cookies []*http.Cookie
}

// ClickRecorder turns inbound visits into click rows, counter increments and
// identity signals.
type ClickRecorder struct {
	links   LinkStore
	clicks  ClickStore
	signals SignalStore
	geo     GeoResolver
	cookies *CookieWriter

	dedupWindow time.Duration
	metrics     metrics.Recorder
	logger      *slog.Logger
}

// NewClickRecorder creates a ClickRecorder. geo may be nil to skip
// geolocation entirely.
func NewClickRecorder(
	links LinkStore,
	clicks ClickStore,
	signals SignalStore,
	geoResolver GeoResolver,
	cookies *CookieWriter,
	dedupWindow time.Duration,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *ClickRecorder {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if dedupWindow <= 0 {
		dedupWindow = 5 * time.Minute
	}
	return &ClickRecorder{
		links:       links,
		clicks:      clicks,
		signals:     signals,
		geo:         geoResolver,
		cookies:     cookies,
		dedupWindow: dedupWindow,
		metrics:     recorder,
		logger:      logger,
	}
}

// Handle processes one inbound visit. Returns ErrLinkNotFound for unknown or
// inactive codes (no click written); any other error means the primary click
// write failed and the request must be reported as a server error.
//
// Side effects on the happy path: one click insert (or none when
// deduplicated), one counter increment (unless bot), up to three signal
// store writes, cookies on the decision. Signal and geo failures never block
// the redirect.
func (r *ClickRecorder) Handle(ctx context.Context, visit VisitRequest) (*RedirectDecision, error) {
	link, err := r.links.GetLinkByCode(ctx, visit.ShortCode)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			r.metrics.IncRedirectNotFound()
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("resolve short code: %w", err)
	}

	destination, err := buildDestination(link)
	if err != nil {
		return nil, fmt.Errorf("build destination: %w", err)
	}

	decision := &RedirectDecision{
		Destination: destination,
		ClientSide:  useragent.IsInAppBrowser(visit.UserAgent),
	}

	isBot := useragent.IsBot(visit.UserAgent)

	duplicate, err := r.clicks.HasRecentClick(ctx, link.ID, visit.IP, r.dedupWindow)
	if err != nil {
		// Dedup is best-effort; a failed check records the click anyway.
		r.logger.Warn("click dedup check failed", "error", err, "link_id", link.ID)
		duplicate = false
	}
	if duplicate {
		r.metrics.IncClickDeduplicated()
		r.logger.Debug("duplicate click skipped",
			"link_id", link.ID,
			"short_code", link.ShortCode,
		)
		return decision, nil
	}

	click := r.buildClick(ctx, link, visit, isBot)

	if err := r.clicks.InsertClick(ctx, click); err != nil {
		return nil, fmt.Errorf("insert click: %w", err)
	}

	if isBot {
		r.metrics.IncBotClick()
		return decision, nil
	}

	if err := r.links.IncrementClicks(ctx, link.ID); err != nil {
		return nil, fmt.Errorf("increment clicks: %w", err)
	}
	r.metrics.IncClickRecorded()

	r.seedSignals(ctx, link, click, visit)

	decision.Cookies = r.cookies.VisitCookies(click.SessionID, click.ID, link.ID, link.Utm)

	r.logger.Info("click_recorded",
		"link_id", link.ID,
		"short_code", link.ShortCode,
		"click_id", click.ID,
		"device", string(click.DeviceType),
		"client_side_redirect", decision.ClientSide,
	)

	return decision, nil
}

// buildClick assembles the click row, parsing user-agent families and
// resolving geo best-effort.
func (r *ClickRecorder) buildClick(ctx context.Context, link *model.Link, visit VisitRequest, isBot bool) *model.Click {
	now := time.Now().UTC()

	click := &model.Click{
		ID:         ulid.Make().String(),
		LinkID:     link.ID,
		OccurredAt: now,
		IPAddress:  visit.IP,
		UserAgent:  useragent.Truncate(visit.UserAgent, maxMetaLength),
		Referrer:   useragent.Truncate(visit.Referrer, maxMetaLength),
		Page:       pathOf(link.Destination),
		DeviceType: useragent.Device(visit.UserAgent),
		Browser:    useragent.Browser(visit.UserAgent),
		OS:         useragent.OS(visit.UserAgent),
		SessionID:  NewSessionID(link.ID, visit.IP, visit.UserAgent),
		IsBot:      isBot,
	}

	if r.geo != nil {
		loc := r.geo.Resolve(ctx, visit.IP, visit.Headers)
		click.CountryCode = loc.CountryCode
		click.City = loc.City
	}

	return click
}

// seedSignals writes the attribution record under session, IP and
// fingerprint keys. Failures are logged and swallowed.
func (r *ClickRecorder) seedSignals(ctx context.Context, link *model.Link, click *model.Click, visit VisitRequest) {
	rec := &model.AttributionRecord{
		LinkID:     link.ID,
		ClickID:    click.ID,
		SessionID:  click.SessionID,
		Utm:        link.Utm,
		CapturedAt: click.OccurredAt,
	}

	seeds := map[cache.SignalKind]string{
		cache.SignalSession:     click.SessionID,
		cache.SignalIP:          HashIP(visit.IP),
		cache.SignalFingerprint: Fingerprint(visit.UserAgent, visit.AcceptLanguage, visit.AcceptEncoding),
	}

	for kind, key := range seeds {
		if key == "" {
			continue
		}
		if err := r.signals.PutSignal(ctx, kind, key, rec); err != nil {
			r.logger.Warn("signal seed failed",
				"kind", string(kind),
				"link_id", link.ID,
				"error", err,
			)
		}
	}
}

// buildDestination appends the link's own UTM parameters (never utm_content)
// and a cache-busting timestamp to the destination URL.
func buildDestination(link *model.Link) (string, error) {
	dest, err := link.Utm.Apply(link.Destination)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(dest)
	if err != nil {
		return "", err
	}

	q := parsed.Query()
	q.Set("_lt", strconv.FormatInt(time.Now().Unix(), 10))
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

func pathOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

package tracking

import (
	"net/http"
	"time"

	"github.com/linktrail/linktrail/internal/model"
)

// Visitor cookie names. All attribution cookies share the same expiry and
// are cleared together after a resolved conversion.
const (
	CookieSessionID = "lt_session"
	CookieClickID   = "lt_click"
	CookieLinkID    = "lt_link"
	CookieSource    = "lt_utm_source"
	CookieMedium    = "lt_utm_medium"
	CookieCampaign  = "lt_utm_campaign"
	CookieTerm      = "lt_utm_term"
)

// CookieWriter builds attribution cookies with consistent flags.
type CookieWriter struct {
	ttl    time.Duration
	secure bool
}

// NewCookieWriter creates a CookieWriter.
func NewCookieWriter(ttl time.Duration, secure bool) *CookieWriter {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &CookieWriter{ttl: ttl, secure: secure}
}

// VisitCookies returns the cookies set on a recorded visit: session id,
// click id, link id and the per-UTM-field cookies.
func (w *CookieWriter) VisitCookies(sessionID, clickID, linkID string, utm model.UtmParams) []*http.Cookie {
	values := []struct{ name, value string }{
		{CookieSessionID, sessionID},
		{CookieClickID, clickID},
		{CookieLinkID, linkID},
		{CookieSource, utm.Source},
		{CookieMedium, utm.Medium},
		{CookieCampaign, utm.Campaign},
		{CookieTerm, utm.Term},
	}

	cookies := make([]*http.Cookie, 0, len(values))
	for _, v := range values {
		if v.value == "" {
			continue
		}
		cookies = append(cookies, w.cookie(v.name, v.value, w.ttl))
	}

	return cookies
}

// ClearCookies returns expired copies of every attribution cookie, set after
// a resolved conversion so a later unrelated purchase starts clean.
func (w *CookieWriter) ClearCookies() []*http.Cookie {
	names := []string{
		CookieSessionID, CookieClickID, CookieLinkID,
		CookieSource, CookieMedium, CookieCampaign, CookieTerm,
	}

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		c := w.cookie(name, "", -time.Hour)
		c.MaxAge = -1
		cookies = append(cookies, c)
	}

	return cookies
}

func (w *CookieWriter) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

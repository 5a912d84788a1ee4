// Package useragent classifies raw User-Agent strings with cheap substring
// heuristics. Good enough for traffic breakdowns; not a full UA parser.
package useragent

import (
	"strings"
	"unicode/utf8"

	"github.com/linktrail/linktrail/internal/model"
)

// botTokens marks crawler traffic: search engines, social preview fetchers
// and the generic spider vocabulary.
var botTokens = []string{
	"bot", "crawler", "spider", "slurp",
	"googlebot", "bingpreview", "duckduckbot", "baiduspider", "yandex",
	"facebookexternalhit", "twitterbot", "linkedinbot", "pinterestbot",
	"telegrambot", "whatsapp", "skypeuripreview", "discordbot",
	"headlesschrome", "phantomjs", "wget", "curl", "python-requests",
}

// inAppTokens identifies social in-app browsers that mishandle HTTP
// redirects when handing off to an external app. Those get a script-based
// redirect page instead of a 302.
var inAppTokens = []string{
	"fban", "fbav", "fb_iab", // Facebook app
	"instagram",
	"tiktok", "musical_ly",
	"micromessenger", // WeChat
	"line/",
	"snapchat",
	"twitter",
}

// IsBot reports whether the user agent looks like crawler traffic.
// An empty user agent is treated as a bot.
func IsBot(ua string) bool {
	if strings.TrimSpace(ua) == "" {
		return true
	}
	lower := strings.ToLower(ua)
	for _, token := range botTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// IsInAppBrowser reports whether the user agent belongs to a social app's
// embedded browser.
func IsInAppBrowser(ua string) bool {
	lower := strings.ToLower(ua)
	for _, token := range inAppTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// Device classifies the user agent as desktop, mobile or tablet.
// Tablet tokens are checked first: an iPad UA also says "mobile".
func Device(ua string) model.DeviceType {
	lower := strings.ToLower(ua)

	if strings.Contains(lower, "tablet") || strings.Contains(lower, "ipad") {
		return model.DeviceTablet
	}
	if strings.Contains(lower, "mobile") || strings.Contains(lower, "android") || strings.Contains(lower, "iphone") {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

// Browser returns the browser family. "edg" is checked before the generic
// chrome and safari tokens because Edge UAs contain both.
func Browser(ua string) string {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "edg"):
		return "edge"
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		return "opera"
	case strings.Contains(lower, "firefox"):
		return "firefox"
	case strings.Contains(lower, "chrome"):
		return "chrome"
	case strings.Contains(lower, "safari"):
		return "safari"
	case strings.Contains(lower, "msie") || strings.Contains(lower, "trident"):
		return "ie"
	default:
		return "other"
	}
}

// OS returns the operating system family.
// iOS tokens come before the generic "mac os" token.
func OS(ua string) string {
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad") || strings.Contains(lower, "ios"):
		return "ios"
	case strings.Contains(lower, "android"):
		return "android"
	case strings.Contains(lower, "windows"):
		return "windows"
	case strings.Contains(lower, "mac os"):
		return "macos"
	case strings.Contains(lower, "linux"):
		return "linux"
	default:
		return "other"
	}
}

// Truncate caps metadata strings before persistence. The cut lands on a
// rune boundary: a split multi-byte rune would leave invalid UTF-8, which
// Postgres rejects in TEXT parameters.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package useragent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/linktrail/linktrail/internal/model"
)

const (
	uaChromeDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"
	uaEdgeDesktop   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	uaSafariIPad    = "Mozilla/5.0 (iPad; CPU OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"
	uaGooglebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	uaFacebookApp   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 [FBAN/FBIOS;FBAV/440.0.0]"
)

func TestIsBot(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"googlebot", uaGooglebot, true},
		{"facebook preview", "facebookexternalhit/1.1", true},
		{"curl", "curl/8.4.0", true},
		{"empty ua", "", true},
		{"whitespace ua", "   ", true},
		{"regular chrome", uaChromeDesktop, false},
		{"iphone safari", uaSafariIPhone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBot(tt.ua); got != tt.want {
				t.Errorf("IsBot(%q) = %v, want %v", tt.ua, got, tt.want)
			}
		})
	}
}

func TestIsInAppBrowser(t *testing.T) {
	if !IsInAppBrowser(uaFacebookApp) {
		t.Error("facebook app UA should be in-app")
	}
	if !IsInAppBrowser("Mozilla/5.0 Instagram 320.0.0.0") {
		t.Error("instagram UA should be in-app")
	}
	if IsInAppBrowser(uaChromeDesktop) {
		t.Error("desktop chrome is not in-app")
	}
}

func TestDevice(t *testing.T) {
	tests := []struct {
		ua   string
		want model.DeviceType
	}{
		{uaChromeDesktop, model.DeviceDesktop},
		{uaSafariIPhone, model.DeviceMobile},
		{uaSafariIPad, model.DeviceTablet},
		{uaFirefoxLinux, model.DeviceDesktop},
	}

	for _, tt := range tests {
		if got := Device(tt.ua); got != tt.want {
			t.Errorf("Device(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}

func TestBrowser(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{uaChromeDesktop, "chrome"},
		{uaEdgeDesktop, "edge"}, // Edge UAs also contain "chrome" and "safari"
		{uaSafariIPhone, "safari"},
		{uaFirefoxLinux, "firefox"},
		{"something else entirely", "other"},
	}

	for _, tt := range tests {
		if got := Browser(tt.ua); got != tt.want {
			t.Errorf("Browser(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}

func TestOS(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{uaChromeDesktop, "windows"},
		{uaSafariIPhone, "ios"},
		{uaSafariIPad, "ios"},
		{uaFirefoxLinux, "linux"},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) Safari/605.1.15", "macos"},
	}

	for _, tt := range tests {
		if got := OS(tt.ua); got != tt.want {
			t.Errorf("OS(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 600)
	if got := Truncate(long, 500); len(got) != 500 {
		t.Errorf("truncated length = %d, want 500", len(got))
	}
	if got := Truncate("short", 500); got != "short" {
		t.Errorf("short string should be unchanged, got %q", got)
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		s    string
		max  int
		want string
	}{
		{"two-byte rune straddles cap", strings.Repeat("a", 499) + "é", 500, strings.Repeat("a", 499)},
		{"cut after full rune keeps it", "aé", 3, "aé"},
		{"four-byte rune straddles cap", "ab\U0001F600", 4, "ab"},
		{"all continuation bytes walked back", "\U0001F600", 3, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.s, tt.max)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Truncate(%q, %d) produced invalid UTF-8", tt.s, tt.max)
			}
		})
	}
}

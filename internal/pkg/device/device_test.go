package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name    string
		ua      string
		device  string
		browser string
	}{
		{"chrome desktop", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36", "Desktop", "Chrome"},
		{"edge desktop", "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36 Edg/126.0", "Desktop", "Edge"},
		{"opera desktop", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 OPR/106.0", "Desktop", "Opera"},
		{"firefox desktop", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0", "Desktop", "Firefox"},
		{"safari iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Version/17.5 Mobile/15E148 Safari/604.1", "Mobile", "Safari"},
		{"chrome android phone", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36", "Mobile", "Chrome"},
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 Chrome/126.0 Safari/537.36", "Tablet", "Chrome"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Version/17.5 Safari/604.1", "Tablet", "Safari"},
		{"empty", "", "Desktop", "Unknown"},
		{"crawler", "Googlebot/2.1 (+http://www.google.com/bot.html)", "Desktop", "Unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info := Parse(tc.ua)
			assert.Equal(t, tc.device, info.DeviceName)
			assert.Equal(t, tc.browser, info.Browser)
			assert.Equal(t, tc.ua, info.UserAgent)
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Firefox on Desktop", Info{DeviceName: "Desktop", Browser: "Firefox"}.Label())
}

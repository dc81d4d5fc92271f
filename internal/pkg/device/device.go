// Package device derives a human label for a browser from its User-Agent.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

type Info struct {
	UserAgent  string `json:"user_agent"`
	DeviceName string `json:"device_name"`
	Browser    string `json:"browser"`
}

// Parse classifies ua into a device class and browser family.
func Parse(ua string) Info {
	parsed := useragent.New(ua)
	return Info{
		UserAgent:  ua,
		DeviceName: deviceName(parsed, ua),
		Browser:    browser(parsed),
	}
}

// deviceName folds the parser's mobile flag into Desktop, Mobile or Tablet.
// Android tablets drop the "Mobile" token; iPads report their own platform.
func deviceName(parsed *useragent.UserAgent, ua string) string {
	switch {
	case parsed.Platform() == "iPad",
		strings.Contains(ua, "Tablet"),
		strings.HasPrefix(parsed.OS(), "Android") && !strings.Contains(ua, "Mobile"):
		return "Tablet"
	case parsed.Mobile():
		return "Mobile"
	default:
		return "Desktop"
	}
}

func browser(parsed *useragent.UserAgent) string {
	name, _ := parsed.Browser()
	switch {
	case name == "", parsed.Bot():
		return "Unknown"
	case strings.HasPrefix(name, "Edge"):
		return "Edge"
	default:
		return name
	}
}

// Label is the string the session list shows and matches on.
func (i Info) Label() string {
	return i.Browser + " on " + i.DeviceName
}

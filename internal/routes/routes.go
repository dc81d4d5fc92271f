// Package routes names the destinations a tab can be sent to.
package routes

import (
	"net/url"
	"strings"
)

const (
	Login          = "/login"
	Register       = "/register"
	ForgotPassword = "/forgot-password"
	ResetPassword  = "/reset-password"
	MFAVerify      = "/mfa-verify"
	Dashboard      = "/dashboard"
	Profile        = "/profile"
	Settings       = "/settings"
	AuthConfirm    = "/auth/confirm"
	AuthCallback   = "/auth/callback"
)

// FromParam carries the originally requested location through a redirect.
const FromParam = "from"

var protected = map[string]bool{
	Dashboard: true,
	Profile:   true,
	Settings:  true,
}

var anonymousOnly = map[string]bool{
	Login:          true,
	Register:       true,
	ForgotPassword: true,
}

func IsProtected(path string) bool {
	return protected[path]
}

// IsAnonymousEntry reports the screens a signed-in user is bounced away from.
func IsAnonymousEntry(path string) bool {
	return anonymousOnly[path]
}

// WithFrom appends the from parameter when from is a safe local path.
func WithFrom(target, from string) string {
	from = SafeFrom(from, "")
	if from == "" {
		return target
	}
	return target + "?" + FromParam + "=" + url.QueryEscape(from)
}

// SafeFrom returns from if it is a local absolute path, fallback otherwise.
// It refuses scheme-relative and absolute URLs so a crafted link cannot
// bounce the user off-site after login.
func SafeFrom(from, fallback string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return fallback
	}
	u, err := url.Parse(from)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return from
}

// PostLogin is where a freshly signed-in user lands.
func PostLogin(from string) string {
	dest := SafeFrom(from, Dashboard)
	if IsAnonymousEntry(dest) || dest == MFAVerify {
		return Dashboard
	}
	return dest
}

// PathOf drops the query and fragment from a location.
func PathOf(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}

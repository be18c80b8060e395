package utils

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	ua "github.com/mileusna/useragent"
)

// ParseUserAgent extracts useful information from a User-Agent string
func ParseUserAgent(userAgent string) (browser, os, device string) {
	if userAgent == "" {
		return "Unknown Client", "Unknown OS", "Desktop"
	}

	parsedUA := ua.Parse(userAgent)

	if parsedUA.Name != "" {
		browser = parsedUA.Name
	} else {
		browser = "Unknown Client"
	}

	if parsedUA.OS != "" {
		os = parsedUA.OS
	} else {
		os = "Unknown OS"
	}

	device = "Desktop"
	if parsedUA.Mobile {
		device = "Mobile"
	} else if parsedUA.Tablet {
		device = "Tablet"
	}

	return strings.TrimSpace(browser), strings.TrimSpace(os), device
}

// ClientDescription builds the advisory metadata string this instance writes
// into the shared session record (the agent's own "user agent").
func ClientDescription() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return fmt.Sprintf("sessioncoord-agent (%s; %s; %s)", runtime.GOOS, runtime.GOARCH, hostname)
}

// DescribeClient turns a raw User-Agent header into the display form used by
// the embedded backend's session metadata.
func DescribeClient(userAgent string) string {
	browser, clientOS, device := ParseUserAgent(userAgent)
	return fmt.Sprintf("%s on %s (%s)", browser, clientOS, device)
}

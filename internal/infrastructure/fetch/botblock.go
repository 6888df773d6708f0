package fetch

import "strings"

const botScanLimit = 5000

// botMarkers are lowercase substrings typical of challenge or block pages
var botMarkers = []string{
	"cf-browser-verification",
	"challenge-platform",
	"cf-chl-",
	"just a moment...",
	"attention required! | cloudflare",
	"captcha",
	"enable javascript",
	"please enable js",
	"javascript is required",
	"access denied",
	"request blocked",
	"you have been blocked",
	"403 forbidden",
	"are you a robot",
	"unusual traffic",
	"px-captcha",
	"datadome",
	"incapsula incident",
}

// DetectBotBlock scans the start of a response body for anti-automation markers.
// The result is informational only.
func DetectBotBlock(body string) bool {
	if len(body) > botScanLimit {
		body = body[:botScanLimit]
	}
	lower := strings.ToLower(body)
	for _, marker := range botMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

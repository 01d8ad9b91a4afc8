// backend/scraper/authwall.go
package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Markers that identify the portal's second-factor screen. Checked against
// the post-login document: an OTP input field, or known prompt text.
var (
	authWallInputSelectors = []string{
		`input[name="otp"]`,
		`input[name="authCode"]`,
		`input[autocomplete="one-time-code"]`,
	}
	authWallTextMarkers = []string{
		"認証コード",       // "verification code"
		"ワンタイムパスワード",  // "one-time password"
		"二段階認証",       // "two-step verification"
		"SMSに送信",       // "sent via SMS"
	}
)

// detectAuthWall inspects the post-login page for second-factor markers.
// Parse failures are treated as "no wall": a garbled page will fail a later
// navigation step with a retriable error instead.
func detectAuthWall(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	for _, sel := range authWallInputSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	body := doc.Find("body").Text()
	for _, marker := range authWallTextMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

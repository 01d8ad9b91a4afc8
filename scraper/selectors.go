// backend/scraper/selectors.go
package scraper

import "errors"

// The portal's DOM is not a versioned contract; markup drifts between
// releases. Each step therefore carries an ordered list of candidate CSS
// selectors tried in order, first match wins. The lists are portal-specific
// and live here so a markup change is a one-line fix.
var (
	loginUserSelectors = []string{
		`input[name="username"]`,
		`input[name="loginId"]`,
		`#login-id`,
		`input[type="text"][autocomplete="username"]`,
	}
	loginPassSelectors = []string{
		`input[name="password"]`,
		`#login-password`,
		`input[type="password"]`,
	}
	loginSubmitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`#login-submit`,
	}
	reserveListSelectors = []string{
		`a[href*="/reserve/list"]`,
		`#menu-reserve-list`,
		`nav a[href*="reserve"]`,
	}
	dateFromSelectors = []string{
		`input[name="searchDateFrom"]`,
		`input[name="visitDateFrom"]`,
		`#search-date-from`,
	}
	dateToSelectors = []string{
		`input[name="searchDateTo"]`,
		`input[name="visitDateTo"]`,
		`#search-date-to`,
	}
	searchSubmitSelectors = []string{
		`button[type="submit"].search`,
		`#search-submit`,
		`button[type="submit"]`,
	}
	downloadSelectors = []string{
		`a[href*="/reserve/csv"]`,
		`button.csv-download`,
		`#csv-download`,
	}
)

var errNoCandidateMatched = errors.New("no candidate selector matched")

// firstMatch tries candidates in order and returns the first one try accepts.
// try is expected to enforce its own per-candidate deadline.
func firstMatch(candidates []string, try func(sel string) error) (string, error) {
	var lastErr error
	for _, sel := range candidates {
		if err := try(sel); err == nil {
			return sel, nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errNoCandidateMatched
	}
	return "", lastErr
}

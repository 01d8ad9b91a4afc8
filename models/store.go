// backend/models/store.go
package models

import (
	"fmt"
	"time"
)

// StoreConfig is one row of the store master: a single managed Restaurant
// Board account plus the date window it should be extracted for.
// Read fresh at the start of every run; never written back.
type StoreConfig struct {
	StoreID   string `json:"store_id"`
	StoreName string `json:"store_name,omitempty"`
	Username  string `json:"rb_username"`
	Password  string `json:"rb_password,omitempty"`
	DaysBack  int    `json:"days_back"`
	FromDate  string `json:"from_date,omitempty"` // YYYY-MM-DD, explicit override
	ToDate    string `json:"to_date,omitempty"`   // YYYY-MM-DD, explicit override
	Note      string `json:"note,omitempty"`
	Active    bool   `json:"active"`
}

// Validate checks the fields required before a store can be processed.
func (s StoreConfig) Validate() error {
	if s.StoreID == "" {
		return fmt.Errorf("store_id is required")
	}
	if s.Username == "" {
		return fmt.Errorf("store %s: rb_username is required", s.StoreID)
	}
	if s.Password == "" {
		return fmt.Errorf("store %s: rb_password is required", s.StoreID)
	}
	if s.DaysBack < 0 || s.DaysBack > 365 {
		return fmt.Errorf("store %s: days_back %d out of range", s.StoreID, s.DaysBack)
	}
	for _, d := range []string{s.FromDate, s.ToDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return fmt.Errorf("store %s: bad date override %q: %w", s.StoreID, d, err)
		}
	}
	return nil
}

// DateWindow is the inclusive reservation-date range one extraction covers.
type DateWindow struct {
	From string // YYYY-MM-DD
	To   string // YYYY-MM-DD
}

func (w DateWindow) String() string {
	return w.From + "_" + w.To
}

// Window resolves the extraction window for a store. An explicit from/to
// override wins; otherwise the window is [today-1-daysBack, today], with
// defaultDaysBack used when the store row does not set its own.
func (s StoreConfig) Window(now time.Time, defaultDaysBack int) DateWindow {
	if s.FromDate != "" && s.ToDate != "" {
		return DateWindow{From: s.FromDate, To: s.ToDate}
	}
	daysBack := s.DaysBack
	if daysBack <= 0 {
		daysBack = defaultDaysBack
	}
	today := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -(1 + daysBack)).Format("2006-01-02")
	return DateWindow{From: from, To: today}
}

// Masked returns a copy safe to expose over the API.
func (s StoreConfig) Masked() StoreConfig {
	c := s
	if c.Password != "" {
		c.Password = "***masked***"
	}
	return c
}

// backend/models/store_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreConfigValidate(t *testing.T) {
	valid := StoreConfig{StoreID: "S001", Username: "u", Password: "p", DaysBack: 7}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*StoreConfig)
	}{
		{"Missing StoreID", func(s *StoreConfig) { s.StoreID = "" }},
		{"Missing Username", func(s *StoreConfig) { s.Username = "" }},
		{"Missing Password", func(s *StoreConfig) { s.Password = "" }},
		{"DaysBack Out Of Range", func(s *StoreConfig) { s.DaysBack = 400 }},
		{"Bad Date Override", func(s *StoreConfig) { s.FromDate = "08/25/2026" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := valid
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)

	t.Run("Explicit Override Wins", func(t *testing.T) {
		s := StoreConfig{StoreID: "S001", FromDate: "2026-08-01", ToDate: "2026-08-15", DaysBack: 7}
		w := s.Window(now, 7)
		assert.Equal(t, DateWindow{From: "2026-08-01", To: "2026-08-15"}, w)
	})

	t.Run("Store DaysBack", func(t *testing.T) {
		s := StoreConfig{StoreID: "S001", DaysBack: 3}
		w := s.Window(now, 7)
		assert.Equal(t, DateWindow{From: "2026-08-26", To: "2026-08-30"}, w)
	})

	t.Run("Default DaysBack", func(t *testing.T) {
		s := StoreConfig{StoreID: "S001"}
		w := s.Window(now, 7)
		assert.Equal(t, DateWindow{From: "2026-08-22", To: "2026-08-30"}, w)
	})

	t.Run("Window String Is Path Safe", func(t *testing.T) {
		w := DateWindow{From: "2026-08-22", To: "2026-08-30"}
		assert.Equal(t, "2026-08-22_2026-08-30", w.String())
	})
}

func TestMasked(t *testing.T) {
	s := StoreConfig{StoreID: "S001", Username: "u", Password: "secret"}
	masked := s.Masked()
	assert.Equal(t, "***masked***", masked.Password)
	assert.Equal(t, "secret", s.Password, "masking must not mutate the original")

	empty := StoreConfig{StoreID: "S002"}
	assert.Equal(t, "", empty.Masked().Password)
}

package adapters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseViewerCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1,234", 1234},
		{"1.2k", 1200},
		{"1.2K", 1200},
		{"3m", 3_000_000},
		{"3M", 3_000_000},
		{" 42 ", 42},
		{"", 0},
		{"abc", 0},
		{"-5", 0},
		{"k", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseViewerCount(tt.in))
		})
	}
}

func TestParseRelativeTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5 minutes ago", 5 * time.Minute, true},
		{"1 hour ago", time.Hour, true},
		{"Last live 3 days ago", 3 * 24 * time.Hour, true},
		{"2 weeks ago", 14 * 24 * time.Hour, true},
		{"1 month ago", 30 * 24 * time.Hour, true},
		{"not available", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRelativeTime(tt.in, now)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, now.Add(-tt.want), got)
			}
		})
	}
}

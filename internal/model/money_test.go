package model

import (
	"testing"
	"time"
)

func TestMicrosFromDollars(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{2.50, 2_500_000},
		{0.0042, 4_200},
		{10.00, 10_000_000},
		{-0.01, -10_000},
		{0.0000004, 0},
		{0.0000005, 1},
	}
	for _, c := range cases {
		if got := MicrosFromDollars(c.in); got != c.want {
			t.Errorf("MicrosFromDollars(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseDollars(t *testing.T) {
	cases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"10.00", 10_000_000, false},
		{"10", 10_000_000, false},
		{"0.0042", 4_200, false},
		{".5", 500_000, false},
		{"2.5", 2_500_000, false},
		{"-1.25", -1_250_000, false},
		{"0.1234567", 123_456, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1.x", 0, true},
	}
	for _, c := range cases {
		got, err := ParseDollars(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseDollars(%q): expected error, got %d", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDollars(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseDollars(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFormatDollars(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{12_500_000, "$12.5000"},
		{10_000_000, "$10.0000"},
		{4_200, "$0.0042"},
		{0, "$0.0000"},
		{-2_500_000, "-$2.5000"},
	}
	for _, c := range cases {
		if got := FormatDollars(c.in); got != c.want {
			t.Errorf("FormatDollars(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHourBucket(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	in := time.Date(2026, 8, 30, 14, 35, 12, 999, loc)
	got := HourBucket(in)
	want := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("HourBucket(%v) = %v, want %v", in, got, want)
	}

	// Two events in the same wall-clock hour share a bucket.
	a := HourBucket(time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC))
	b := HourBucket(time.Date(2026, 8, 30, 14, 59, 59, 0, time.UTC))
	if !a.Equal(b) {
		t.Errorf("expected same bucket, got %v and %v", a, b)
	}
	c := HourBucket(time.Date(2026, 8, 30, 15, 0, 0, 0, time.UTC))
	if a.Equal(c) {
		t.Error("expected adjacent hours to bucket separately")
	}
}

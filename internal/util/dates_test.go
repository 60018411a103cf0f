package util

import (
	"testing"
	"time"
)

func TestParseDA(t *testing.T) {
	got, ok := ParseDA("20240315")
	if !ok {
		t.Fatal("ParseDA failed for valid date")
	}
	want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseDA = %v, want %v", got, want)
	}

	for _, bad := range []string{"", "2024", "notadate", "20241301x"} {
		if _, ok := ParseDA(bad); ok {
			t.Errorf("ParseDA(%q) should fail", bad)
		}
	}
}

func TestParseDATM(t *testing.T) {
	got, ok := ParseDATM("20240315", "142530")
	if !ok {
		t.Fatal("ParseDATM failed for valid values")
	}
	want := time.Date(2024, time.March, 15, 14, 25, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseDATM = %v, want %v", got, want)
	}

	// Fractional seconds are ignored
	got, ok = ParseDATM("20240315", "142530.123456")
	if !ok || got.Second() != 30 {
		t.Errorf("ParseDATM with fractional seconds = %v, ok=%v", got, ok)
	}

	// Missing time still yields the date
	got, ok = ParseDATM("20240315", "")
	if !ok || got.Hour() != 0 {
		t.Errorf("ParseDATM without time = %v, ok=%v", got, ok)
	}
}

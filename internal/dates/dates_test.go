package dates

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{"iso date", "2024-05-10", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), false},
		{"iso datetime naive", "2024-05-10T08:30:00", time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC), false},
		{"rfc3339 with offset", "2024-05-10T12:00:00-03:00", time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC), false},
		{"space separated", "2024-05-10 08:30:00", time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC), false},
		{"rfc1123", "Fri, 10 May 2024 08:30:00 GMT", time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC), false},
		{"future rejected", "2030-01-01", time.Time{}, true},
		{"before min year rejected", "1999-12-31", time.Time{}, true},
		{"garbage rejected", "not a date at all xyz!!", time.Time{}, true},
		{"empty rejected", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAt(tt.value, testNow, DefaultMinYear)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDate) {
					t.Fatalf("Expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseAt(%q) = %v, want %v", tt.value, got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("Expected UTC location, got %v", got.Location())
			}
		})
	}
}

func TestParseYMD(t *testing.T) {
	got, err := ParseYMD("2024-05-09")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseYMD = %v, want %v", got, want)
	}

	if _, err := ParseYMD("09/05/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate for non-ISO input, got %v", err)
	}
	if _, err := ParseYMD(""); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected ErrInvalidDate for empty input, got %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	if err := Validate(testNow.Add(time.Hour), testNow, DefaultMinYear); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected future timestamp rejection, got %v", err)
	}
	if err := Validate(time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), testNow, DefaultMinYear); !errors.Is(err, ErrInvalidDate) {
		t.Errorf("Expected pre-min-year rejection, got %v", err)
	}
	if err := Validate(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), testNow, DefaultMinYear); err != nil {
		t.Errorf("Expected min-year boundary to be accepted, got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	meta := time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC)
	feed := time.Date(2024, 5, 9, 8, 0, 0, 0, time.UTC)
	future := testNow.Add(48 * time.Hour)

	got := Reconcile(&meta, &feed, testNow, DefaultMinYear)
	if got == nil || !got.Equal(meta) {
		t.Errorf("Expected metadata date preferred, got %v", got)
	}

	got = Reconcile(nil, &feed, testNow, DefaultMinYear)
	if got == nil || !got.Equal(feed) {
		t.Errorf("Expected feed date fallback, got %v", got)
	}

	got = Reconcile(&future, &feed, testNow, DefaultMinYear)
	if got == nil || !got.Equal(feed) {
		t.Errorf("Expected invalid metadata date skipped in favor of feed date, got %v", got)
	}

	if got := Reconcile(nil, nil, testNow, DefaultMinYear); got != nil {
		t.Errorf("Expected nil when no candidates, got %v", got)
	}

	if got := Reconcile(&future, nil, testNow, DefaultMinYear); got != nil {
		t.Errorf("Expected nil when all candidates invalid, got %v", got)
	}
}

func TestNormalizeConvertsZone(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	local := time.Date(2024, 5, 10, 12, 0, 0, 500, loc)
	got := Normalize(local)
	want := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
}

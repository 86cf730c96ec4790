package db

import (
	"testing"
	"time"
)

func TestNormalizeDateAgreesAcrossZones(t *testing.T) {
	t.Parallel()

	cst := time.FixedZone("UTC+8", 8*3600)
	morning := time.Date(2026, 3, 10, 9, 0, 0, 0, cst)
	parsed, err := time.Parse("2006-01-02", "2026-03-10")
	if err != nil {
		t.Fatalf("failed to parse date: %v", err)
	}

	// 同一个日历日的本地时间与 UTC 日期必须落到同一个存储值
	if !NormalizeDate(morning).Equal(NormalizeDate(parsed)) {
		t.Fatalf("same calendar day normalized to different instants: %v vs %v",
			NormalizeDate(morning), NormalizeDate(parsed))
	}

	want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	if got := NormalizeDate(morning); !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestNormalizeDateIsIdempotent(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 23, 59, 59, 0, time.FixedZone("UTC-5", -5*3600))
	once := NormalizeDate(base)
	if !NormalizeDate(once).Equal(once) {
		t.Fatalf("normalizing twice changed the value: %v vs %v", NormalizeDate(once), once)
	}
}

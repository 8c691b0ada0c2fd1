package main

import (
	"bytes"
	"strings"
	"testing"

	"gogo/internal/modules/pricing"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig([]string{"-distance", "8000", "-duration", "1200", "-at", "2026-02-10T08:00:00+08:00", "-promo-kind", "Percentage", "-promo-value", "20", "-promo-cap", "50"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.DistanceMeters != 8000 || cfg.DurationSeconds != 1200 {
		t.Errorf("trip = %v/%v, want 8000/1200", cfg.DistanceMeters, cfg.DurationSeconds)
	}
	p := cfg.promo()
	if p == nil || p.Kind != "percentage" || p.MaxDiscount == nil || *p.MaxDiscount != 50 {
		t.Errorf("promo = %+v", p)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	for _, args := range [][]string{
		{"-at", "tomorrow"},
		{"-distance", "-1"},
	} {
		if _, err := loadConfig(args); err == nil {
			t.Errorf("loadConfig(%v) error = nil, want error", args)
		}
	}
}

func TestPrintQuotes(t *testing.T) {
	cfg, err := loadConfig([]string{"-at", "2026-02-10T12:00:00+08:00", "-timezone", "Asia/Manila"})
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := printQuotes(&out, cfg, pricing.DefaultCatalog()); err != nil {
		t.Fatalf("printQuotes() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines, want header, column line and 6 classes:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "surge=x1.00") {
		t.Errorf("header = %q, want no surge at noon on a weekday", lines[0])
	}
	// motorcycle: 30 + 5*7 + 15*1 = 80
	if f := strings.Fields(lines[2]); f[0] != "motorcycle" || f[len(f)-1] != "80" {
		t.Errorf("motorcycle row = %q, want total 80", lines[2])
	}
}

package tle

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestParseCatalog(t *testing.T) {
	input := strings.Join([]string{
		issName,
		issLine1,
		issLine2,
		"",
		iss2025Line1, // no name line
		iss2025Line2,
		"BROKEN CHECKSUM",
		issLine1[:68] + "0",
		issLine2,
		"ORPHAN NAME",
		"SSO TEST   ",
		ssoLine1,
		ssoLine2,
		"TRUNCATED",
		ssoLine1,
	}, "\r\n")

	sets, err := ParseCatalog(strings.NewReader(input), testLogger())
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	want := []struct {
		name    string
		catalog int
	}{
		{issName, 25544},
		{"", 25544},
		{"SSO TEST", 99999},
	}
	if len(sets) != len(want) {
		t.Fatalf("got %d element sets, want %d", len(sets), len(want))
	}
	for i, w := range want {
		if sets[i].Name != w.name || sets[i].CatalogNumber != w.catalog {
			t.Errorf("set %d = %q/%d, want %q/%d", i, sets[i].Name, sets[i].CatalogNumber, w.name, w.catalog)
		}
	}
}

func TestParseCatalogEmpty(t *testing.T) {
	sets, err := ParseCatalog(strings.NewReader("\n\n"), testLogger())
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(sets) != 0 {
		t.Errorf("got %d sets from empty input", len(sets))
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	good := dir + "/catalog.tle"
	if err := os.WriteFile(good, []byte(issName+"\n"+issLine1+"\n"+issLine2+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(good, testLogger())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if c.Source != good || len(c.Sets) != 1 {
		t.Errorf("catalog = %s with %d sets", c.Source, len(c.Sets))
	}

	empty := dir + "/empty.tle"
	if err := os.WriteFile(empty, []byte("NOTHING HERE\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(empty, testLogger()); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("empty file: err = %v, want ErrMalformedRecord", err)
	}
	if _, err := LoadCatalog(dir+"/missing.tle", testLogger()); err == nil {
		t.Error("missing file: want error")
	}
}

func TestStore(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Fatal("new store should be empty")
	}
	if s.AgeSeconds() != -1 {
		t.Errorf("AgeSeconds() = %v, want -1", s.AgeSeconds())
	}
	if _, ok := s.Lookup(25544); ok {
		t.Error("Lookup on empty store succeeded")
	}

	a, _ := ParseLines(issName, issLine1, issLine2)
	b, _ := ParseLines("", iss2025Line1, iss2025Line2)
	c, _ := ParseLines("SSO", ssoLine1, ssoLine2)
	s.Set(NewCatalog("test", []ElementSet{a, b, c}, time.Now().Add(-time.Minute)))

	got, ok := s.Lookup(25544)
	if !ok {
		t.Fatal("Lookup(25544) failed")
	}
	// The later entry wins.
	if got.EpochYear != 2025 {
		t.Errorf("Lookup(25544) epoch year = %d, want 2025", got.EpochYear)
	}
	if age := s.AgeSeconds(); age < 59 {
		t.Errorf("AgeSeconds() = %v, want >= 60", age)
	}

	er := s.Get().EpochRange
	if er.Min.Year() != 2008 || er.Max.Year() != 2025 {
		t.Errorf("EpochRange = %v..%v, want 2008..2025", er.Min, er.Max)
	}
}

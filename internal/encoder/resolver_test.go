package encoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newTestResolver(buf *bytes.Buffer, subs *[]Substitution) *Resolver {
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewResolver(DefaultFallbacks(),
		WithLogger(logger),
		WithSubstitutionHook(func(s Substitution) { *subs = append(*subs, s) }),
	)
}

func TestResolve_ExactMatch(t *testing.T) {
	var buf bytes.Buffer
	var subs []Substitution
	r := newTestResolver(&buf, &subs)
	enc, _ := New(FeatureCrop, []string{"Maize", "Rice, paddy", "Wheat"})

	for i, v := range []string{"Maize", "Rice, paddy", "Wheat"} {
		res, err := r.Resolve(enc, v)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", v, err)
		}
		if res.Code != i {
			t.Errorf("Resolve(%q) code = %d, want %d", v, res.Code, i)
		}
		if res.Substitution != nil {
			t.Errorf("Resolve(%q) unexpectedly substituted: %+v", v, res.Substitution)
		}
	}
	if len(subs) != 0 || buf.Len() != 0 {
		t.Fatalf("exact matches must not be reported, got subs=%v log=%s", subs, buf.String())
	}
}

func TestResolve_FallbackToDefault(t *testing.T) {
	var buf bytes.Buffer
	var subs []Substitution
	r := newTestResolver(&buf, &subs)
	enc, _ := New(FeatureDistrict, []string{"Brazil", "India", "Kenya"})

	res, err := r.Resolve(enc, "Atlantis")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 1 {
		t.Fatalf("expected code of %q (1), got %d", DefaultDistrict, res.Code)
	}
	want := Substitution{Feature: FeatureDistrict, Requested: "Atlantis", Used: DefaultDistrict}
	if res.Substitution == nil || *res.Substitution != want {
		t.Fatalf("expected substitution %+v, got %+v", want, res.Substitution)
	}
	if len(subs) != 1 || subs[0] != want {
		t.Fatalf("expected hook to observe %+v, got %v", want, subs)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "WARN" {
		t.Errorf("expected WARN level, got %v", entry["level"])
	}
	if entry["requested"] != "Atlantis" || entry["substituted"] != DefaultDistrict || entry["feature"] != FeatureDistrict {
		t.Errorf("log entry missing substitution details: %v", entry)
	}
}

func TestResolve_FallbackToFirstClass(t *testing.T) {
	var buf bytes.Buffer
	var subs []Substitution
	r := newTestResolver(&buf, &subs)
	enc, _ := New(FeatureCrop, []string{"Barley", "Maize"})

	res, err := r.Resolve(enc, "Unobtainium")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 0 {
		t.Fatalf("expected first class code 0, got %d", res.Code)
	}
	if res.Substitution == nil || res.Substitution.Used != "Barley" {
		t.Fatalf("expected substitution to Barley, got %+v", res.Substitution)
	}
}

func TestResolve_FeatureWithoutDefault(t *testing.T) {
	var buf bytes.Buffer
	var subs []Substitution
	r := newTestResolver(&buf, &subs)
	enc, _ := New("Season", []string{"Kharif", "Rabi"})

	res, err := r.Resolve(enc, "Monsoon")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Code != 0 || res.Substitution == nil || res.Substitution.Used != "Kharif" {
		t.Fatalf("expected fallback to first class, got %+v", res)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := NewResolver(DefaultFallbacks(), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	enc, _ := New(FeatureCrop, []string{"Maize", "Rice, paddy"})

	first, _ := r.Resolve(enc, "Quinoa")
	for i := 0; i < 10; i++ {
		got, _ := r.Resolve(enc, "Quinoa")
		if got.Code != first.Code || *got.Substitution != *first.Substitution {
			t.Fatalf("resolution changed between calls: %+v vs %+v", first, got)
		}
	}
}

func TestResolve_MissingEncoder(t *testing.T) {
	r := NewResolver(DefaultFallbacks())

	_, err := r.Resolve(nil, "Maize")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "Maize") {
		t.Fatalf("expected error to mention the value, got %v", err)
	}
}

func TestNewResolver_CopiesFallbacks(t *testing.T) {
	fallbacks := map[string]string{FeatureCrop: "Maize"}
	r := NewResolver(fallbacks, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	fallbacks[FeatureCrop] = "Wheat"

	enc, _ := New(FeatureCrop, []string{"Maize", "Wheat"})
	res, _ := r.Resolve(enc, "Quinoa")
	if res.Substitution.Used != "Maize" {
		t.Fatalf("resolver should keep its own copy of fallbacks, used %q", res.Substitution.Used)
	}
}

package provider

import (
	"context"
	"testing"

	"codesearch/internal/model"
)

func TestNewRejectsLocalKind(t *testing.T) {
	_, err := New(KindLocal)
	if err == nil {
		t.Fatal("expected an error for the local provider kind")
	}
	kind, ok := model.KindOf(err)
	if !ok || kind != model.ErrProviderInvalid {
		t.Errorf("expected ErrProviderInvalid, got %v", err)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(Kind("bogus"))
	if err == nil {
		t.Fatal("expected an error for an unknown provider kind")
	}
}

func TestNewOffReturnsNoOp(t *testing.T) {
	e, err := New(KindOff)
	if err != nil {
		t.Fatalf("New(off): %v", err)
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(vecs))
	}
}

func TestFixedEmbedder(t *testing.T) {
	e := FixedEmbedder{Vector: []float32{1, 2, 3}, ID: "fixed"}
	vecs, err := e.Embed(context.Background(), []string{"x", "y"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 3 {
		t.Errorf("unexpected shape: %v", vecs)
	}
	if e.Dimensions() != 3 {
		t.Errorf("expected dimensions 3, got %d", e.Dimensions())
	}
}

func TestFlakyEmbedderRetriesThenSucceeds(t *testing.T) {
	e := &FlakyEmbedder{FailuresLeft: 2, Vector: []float32{1}}

	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected first call to fail")
	}
	if _, err := e.Embed(context.Background(), []string{"a"}); err == nil {
		t.Fatal("expected second call to fail")
	}
	vecs, err := e.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("expected third call to succeed, got %v", err)
	}
	if len(vecs) != 1 {
		t.Errorf("expected 1 vector, got %d", len(vecs))
	}
	if e.Calls() != 3 {
		t.Errorf("expected 3 calls, got %d", e.Calls())
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		code int
		kind model.ErrorKind
	}{
		{200, ""},
		{429, model.ErrProviderRateLimited},
		{401, model.ErrProviderAuth},
		{503, model.ErrProviderTransient},
		{400, model.ErrProviderInvalid},
	}
	for _, tc := range cases {
		err := classifyStatus(tc.code)
		if tc.code == 200 {
			if err != nil {
				t.Errorf("expected nil error for 200, got %v", err)
			}
			continue
		}
		kind, ok := model.KindOf(err)
		if !ok || kind != tc.kind {
			t.Errorf("status %d: expected kind %s, got %v", tc.code, tc.kind, err)
		}
	}
}

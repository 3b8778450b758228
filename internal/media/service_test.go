package media

import (
	"context"
	"testing"
)

func TestPlaceholderSeededBySlug(t *testing.T) {
	svc, err := New(Config{PlaceholderBase: "https://picsum.photos/seed"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := svc.Placeholder("market-outlook")
	want := "https://picsum.photos/seed/market-outlook/1200/630"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	if svc.Placeholder("market-outlook") != got {
		t.Fatal("placeholder should be deterministic for a slug")
	}
}

func TestPlaceholderBlankSlug(t *testing.T) {
	svc, _ := New(Config{PlaceholderBase: "https://picsum.photos/seed/"})

	got := svc.Placeholder("")
	want := "https://picsum.photos/seed/insight/1200/630"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestImageURLWithoutObjectStorage(t *testing.T) {
	svc, err := New(Config{PlaceholderBase: "https://picsum.photos/seed"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := svc.ImageURL(context.Background(), "uploads/img.png", "rate-watch")
	want := "https://picsum.photos/seed/rate-watch/1200/630"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

//go:build !integration

package i18n

import (
	"testing"
	"testing/fstest"
)

func TestTranslator(t *testing.T) {
	// 1. Arrange
	contentBytes := []byte("greeting: Hello\nfailed_for: \"Failed for %s: %s\"")

	// 2. Act
	translator, err := newTranslatorFromBytes(contentBytes)
	if err != nil {
		t.Fatalf("newTranslatorFromBytes failed: %v", err)
	}

	// 3. Assert
	t.Run("should translate a simple key", func(t *testing.T) {
		if got, want := translator.T("greeting"), "Hello"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should return key if not found", func(t *testing.T) {
		if got, want := translator.T("nonexistent_key"), "nonexistent_key"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})

	t.Run("should format arguments correctly", func(t *testing.T) {
		got := translator.T("failed_for", "https://a.io", "boom")
		if want := "Failed for https://a.io: boom"; got != want {
			t.Errorf("wanted '%s', got '%s'", want, got)
		}
	})
}

func TestNewTranslator_FromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/de.yaml": {Data: []byte("greeting: Hallo")},
	}

	tr, err := NewTranslator(fsys, "de")
	if err != nil {
		t.Fatalf("NewTranslator failed: %v", err)
	}
	if got := tr.T("greeting"); got != "Hallo" {
		t.Errorf("wanted 'Hallo', got '%s'", got)
	}
	if tr.Lang() != "de" {
		t.Errorf("wanted lang 'de', got '%s'", tr.Lang())
	}

	if _, err := NewTranslator(fsys, "fr"); err == nil {
		t.Fatal("expected error for missing locale")
	}
}

func TestNewTranslator_EmbeddedEnglish(t *testing.T) {
	tr, err := NewTranslator(LocalesFS, "en")
	if err != nil {
		t.Fatalf("NewTranslator(en) failed: %v", err)
	}
	if got := tr.T("no_allowed_url"); got != "No allowed URLs found." {
		t.Errorf("unexpected no_allowed_url text: %q", got)
	}
	if got := tr.T("processing", 3); got != "Processing 3 URL(s)... ⏳" {
		t.Errorf("unexpected processing text: %q", got)
	}
}

func TestNewTranslator_RejectsBadYAML(t *testing.T) {
	if _, err := newTranslatorFromBytes([]byte("a: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := newTranslatorFromBytes([]byte("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

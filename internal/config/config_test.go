package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.PreviewSize != defaultPreviewSize {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
}

func TestLoadReadsAndNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
base_url: https://example.com/
timezone: Europe/Vienna
watch: false
site:
  name: Jane Doe
  tagline: Speaker and instructor
preview_size: 3
feeds:
  - id: meetups
    url: https://calendar.example.com/meetups.ics
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "https://example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.Site.Title != "Jane Doe" {
		t.Fatalf("expected title to fall back to name, got %q", cfg.Site.Title)
	}
	if cfg.Watch {
		t.Fatalf("expected watch disabled")
	}
	if cfg.PreviewSize != 3 || cfg.RecentPosts != defaultRecentPosts {
		t.Fatalf("unexpected sizes: preview=%d recent=%d", cfg.PreviewSize, cfg.RecentPosts)
	}
	if len(cfg.Feeds) != 1 || cfg.Feeds[0].SourceID() != "meetups" {
		t.Fatalf("unexpected feeds: %+v", cfg.Feeds)
	}
	if cfg.Location().String() != "Europe/Vienna" {
		t.Fatalf("unexpected location %s", cfg.Location())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: 127.0.0.1:9000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("FOLIO_LISTEN", "0.0.0.0:8081")
	t.Setenv("FOLIO_CONTENT_DIR", "/srv/content")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:8081" || cfg.ContentDir != "/srv/content" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestParseRejectsUnknownTimezone(t *testing.T) {
	if _, err := Parse([]byte("timezone: Mars/Olympus\n")); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Site.Name = "Jane Doe"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Site.Name != "Jane Doe" || got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Fatalf("unexpected config after save: %+v", got)
	}
}

func TestFeedSourceIDFallbacks(t *testing.T) {
	tests := []struct {
		feed FeedConfig
		want string
	}{
		{FeedConfig{ID: "a", Name: "b", URL: "c"}, "a"},
		{FeedConfig{Name: "b", URL: "c"}, "b"},
		{FeedConfig{URL: "c"}, "c"},
	}
	for _, tt := range tests {
		if got := tt.feed.SourceID(); got != tt.want {
			t.Fatalf("SourceID(%+v) = %q, want %q", tt.feed, got, tt.want)
		}
	}
}

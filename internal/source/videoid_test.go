package source

import (
	"errors"
	"testing"

	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{"watch url", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch url extra params", "https://youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ"},
		{"mobile", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"short link", "https://youtu.be/dQw4w9WgXcQ?si=abc", "dQw4w9WgXcQ"},
		{"no scheme", "youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts", "https://www.youtube.com/shorts/abcdefghijk", "abcdefghijk"},
		{"live", "https://www.youtube.com/live/a-b_c-d_e-f", "a-b_c-d_e-f"},
		{"bare id", "dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"whitespace", "  dQw4w9WgXcQ \n", "dQw4w9WgXcQ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVideoID(tt.ref)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestExtractVideoIDInvalid(t *testing.T) {
	refs := []string{
		"",
		"https://vimeo.com/123456",
		"https://www.youtube.com/watch",
		"https://www.youtube.com/watch?v=short",
		"https://www.youtube.com/channel/UC123",
		"https://youtu.be/",
		"not a url at all",
	}

	for _, ref := range refs {
		if _, err := ExtractVideoID(ref); !errors.Is(err, domain.ErrInvalidURL) {
			t.Errorf("ExtractVideoID(%q) error = %v, want ErrInvalidURL", ref, err)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	for _, id := range []string{"youtube", "invidious", "browser"} {
		src, err := New(config.TranscriptConfig{Source: id, Invidious: config.InvidiousConfig{BaseURL: "http://localhost"}})
		if err != nil {
			t.Fatalf("New(%q): %v", id, err)
		}
		if src.GetSourceID() != id {
			t.Errorf("New(%q).GetSourceID() = %q", id, src.GetSourceID())
		}
		src.Close()
	}

	if _, err := New(config.TranscriptConfig{Source: "vimeo"}); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("unknown source: err = %v, want ErrConfiguration", err)
	}
}

package source

import (
	"fmt"

	"github.com/timmy/tubechat/internal/config"
	"github.com/timmy/tubechat/internal/domain"
	"github.com/timmy/tubechat/internal/source/browser"
	"github.com/timmy/tubechat/internal/source/invidious"
	"github.com/timmy/tubechat/internal/source/youtube"
)

// New builds the transcript backend selected by cfg.Source.
func New(cfg config.TranscriptConfig) (Source, error) {
	switch cfg.Source {
	case youtube.SourceID, "":
		return youtube.NewAdapter(youtube.Config{
			Language: cfg.Language,
			Timeout:  cfg.Timeout,
		}), nil
	case invidious.SourceID:
		return invidious.NewAdapter(invidious.Config{
			BaseURL:  cfg.Invidious.BaseURL,
			Language: cfg.Language,
			Timeout:  cfg.Timeout,
		}), nil
	case browser.SourceID:
		return browser.NewAdapter(browser.Config{
			Language: cfg.Language,
			ExecPath: cfg.Browser.ExecPath,
			Headless: cfg.Browser.Headless,
			Timeout:  cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown transcript source %q", domain.ErrConfiguration, cfg.Source)
	}
}

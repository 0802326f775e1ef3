package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/timmy/tubechat/internal/chatui"
	"github.com/timmy/tubechat/internal/logger"
)

func main() {
	settingsPath := flag.String("settings", chatui.DefaultSettingsPath(), "Path to the client settings file")
	server := flag.String("server", "", "Chat server URL (overrides settings)")
	video := flag.String("video", "", "Video URL to chat about (overrides settings)")
	flag.Parse()

	// The terminal belongs to the UI, so logs only go to a rotating file.
	envCfg := logger.LoadFromEnv()
	envCfg.Environment = "client"
	envCfg.LogFileOnly = true
	envCfg.LogFile = filepath.Join(filepath.Dir(*settingsPath), "chat.log")
	logger.SetDefaultLogger(logger.NewFromEnv(envCfg))
	defer logger.Sync()

	settings, err := chatui.LoadSettings(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tubechat: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		settings.ServerURL = *server
	}
	if *video != "" {
		settings.VideoURL = *video
	}

	app := chatui.NewApp(settings, *settingsPath, func(s *chatui.Settings) chatui.Streamer {
		return chatui.NewClient(s.ServerURL, s.VideoURL)
	})

	logger.Info("Chat client started: server=%s", settings.ServerURL)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tubechat: %v\n", err)
		os.Exit(1)
	}
}

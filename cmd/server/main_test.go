package main

import (
	"log/slog"
	"testing"
)

func TestSetupLogging_DefaultsToInfoOnInvalidLevel(t *testing.T) {
	setupLogging("not-a-level")
	if !slog.Default().Enabled(nil, slog.LevelInfo) {
		t.Error("expected info level to be enabled after falling back from an invalid LOG_LEVEL")
	}
	if slog.Default().Enabled(nil, slog.LevelDebug) {
		t.Error("debug should not be enabled under the info fallback")
	}
}

func TestSetupLogging_HonorsConfiguredLevel(t *testing.T) {
	setupLogging("debug")
	if !slog.Default().Enabled(nil, slog.LevelDebug) {
		t.Error("expected debug level to be enabled when LOG_LEVEL=debug")
	}
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version must not be empty")
	}
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestWithComponent(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	logger := WithComponent("cli")
	logger.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"component":"cli"`) {
		t.Errorf("component field missing: %s", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("message missing: %s", out)
	}
}

func TestInitLevels(t *testing.T) {
	prev := log.Logger
	defer func() { log.Logger = prev }()

	Init(false)
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("default level = %s, want info", zerolog.GlobalLevel())
	}
	Init(true)
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("verbose level = %s, want debug", zerolog.GlobalLevel())
	}
}

package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/config"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown", "source", "META.pdf")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "source=META.pdf")
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("chatty", &buf)

	logger.Debug("hidden")
	logger.Info("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnableIngest_RequiresOpenAIKey(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()
	a := &App{Config: cfg, Logger: NewLogger("error", &bytes.Buffer{})}

	err := a.EnableIngest()

	assert.ErrorContains(t, err, "OPENAI_API_KEY")
	assert.Nil(t, a.Orchestrator)
}

package zerolog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

func TestZerologLogger_NewLogger(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}
}

func TestZerologLogger_Levels(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Debug("debug message", admit.Field{Key: "key", Value: "value"})
	logger.Info("info message", admit.Field{Key: "key", Value: "value"})
	logger.Warn("warn message", admit.Field{Key: "key", Value: "value"})
	logger.Error("error message", admit.Field{Key: "key", Value: "value"})

	lines := strings.Count(strings.TrimSpace(output.String()), "\n") + 1
	if lines != 4 {
		t.Errorf("expected 4 log lines, got %d: %s", lines, output.String())
	}
}

func TestZerologLogger_LogLevelFiltering(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output).Level(zerolog.WarnLevel))

	// Debug and Info should be filtered out
	logger.Debug("debug message")
	logger.Info("info message")

	if output.Len() != 0 {
		t.Error("Expected debug and info to be filtered out")
	}

	// Warn and Error should be logged
	logger.Warn("warn message")
	logger.Error("error message")

	if output.Len() == 0 {
		t.Error("Expected warn and error to be logged")
	}
}

func TestZerologLogger_Fields(t *testing.T) {
	output := bytes.Buffer{}
	logger := NewLogger(zerolog.New(&output))

	logger.Info("admission denied",
		admit.Field{Key: "userId", Value: "user1"},
		admit.Field{Key: "credits", Value: 320},
	)

	line := output.String()
	if !strings.Contains(line, `"userId":"user1"`) {
		t.Errorf("expected userId field in output: %s", line)
	}
	if !strings.Contains(line, `"credits":320`) {
		t.Errorf("expected credits field in output: %s", line)
	}
}

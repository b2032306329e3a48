package cmd

import (
	"log/slog"
	"testing"

	"github.com/amkisko/snake/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageLogging(t *testing.T) {
	old := slog.Default()
	t.Cleanup(func() { slog.SetDefault(old) })

	stage := ui.NewStage(ui.Handlers{})
	restore := stageLogging("info", stage)

	slog.Info("while playing")
	lines := stage.LogWriter().Tail(10)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "while playing")

	restore()
	slog.Warn("while leaving rooms")
	assert.Equal(t, lines, stage.LogWriter().Tail(10))
}

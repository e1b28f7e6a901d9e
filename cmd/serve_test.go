package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runnel.dev/pkg/runnel/internal/server"
)

func TestServeCmd_PassesOptions(t *testing.T) {
	original := serve
	t.Cleanup(func() { serve = original })

	var got server.Options

	serve = func(_ context.Context, opts server.Options) error {
		got = opts
		return nil
	}

	cmd, _ := newTestRoot(newServeCmd())
	cmd.SetArgs([]string{"serve", "--watch", "./crates/..."})
	require.NoError(t, cmd.Execute())

	assert.True(t, got.Watch)
	assert.Equal(t, []string{"./crates/..."}, got.Patterns)
	assert.Equal(t, "cargo", got.Executor.Command.Program)
	assert.Equal(t, 10*time.Minute, got.Executor.Timeout)
}

package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/buildwrap/internal/config"
)

// shRunner wraps /bin/sh so tests can script arbitrary child behavior.
func shRunner(out *strings.Builder) *Runner {
	cfg := config.Default()
	cfg.Build.Command = "sh"
	return New(cfg, out)
}

func TestRunCleanBuild(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	res, err := r.Run(context.Background(), []string{"-c", "echo compiling; echo done"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Empty(t, res.Matches)
	assert.Equal(t, "compiling\ndone\n", out.String())
	assert.NotEmpty(t, res.RunID)
}

func TestRunCollectsMatchesAndEchoesEverything(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	script := `echo "cc -c a.c"; echo "a.c:1: warning: foo"; echo "a.c:2: error: bar"; echo "a.c:3: error: baz"`
	res, err := r.Run(context.Background(), []string{"-c", script})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	require.Len(t, res.Matches, 3)
	assert.Equal(t, "warning", res.Matches[0].Category)
	assert.Equal(t, "a.c:1: warning: foo", res.Matches[0].Text)
	assert.Equal(t, "error", res.Matches[1].Category)
	assert.Equal(t, "error", res.Matches[2].Category)

	// Passthrough keeps every line, matched or not, in order.
	assert.Equal(t, "cc -c a.c\na.c:1: warning: foo\na.c:2: error: bar\na.c:3: error: baz\n", out.String())
}

func TestRunMergesStderrIntoStdout(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	res, err := r.Run(context.Background(), []string{"-c", `echo "to stdout"; echo "x error: on stderr" 1>&2`})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, out.String(), "to stdout\n")
	assert.Contains(t, out.String(), "x error: on stderr\n")
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "error", res.Matches[0].Category)
}

func TestRunPropagatesExitCode(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	res, err := r.Run(context.Background(), []string{"-c", "echo failing; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

// Exit code stays zero no matter how many matches were recorded.
func TestRunExitCodeIndependentOfMatches(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	res, err := r.Run(context.Background(), []string{"-c", `echo "warning: a"; echo "warning: b"; exit 0`})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Len(t, res.Matches, 2)
}

func TestRunCommandNotFound(t *testing.T) {
	var out strings.Builder
	cfg := config.Default()
	cfg.Build.Command = "definitely-not-a-real-build-tool"
	r := New(cfg, &out)

	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
}

// The child sees LANG forced to the override even when the host environment
// carries a localizing locale.
func TestRunOverridesLocale(t *testing.T) {
	t.Setenv("LANG", "fr_FR.UTF-8")

	var out strings.Builder
	r := shRunner(&out)

	res, err := r.Run(context.Background(), []string{"-c", `echo "LANG=[$LANG]"; echo "x error: y"`})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "LANG=[]\n")
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "error", res.Matches[0].Category)
}

// Cancellation must kill the child: the run returns promptly with the
// context error instead of blocking for the full sleep.
func TestRunKillsChildOnCancel(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, []string{"-c", "echo started; sleep 30; echo finished"})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 10*time.Second, "child was not killed on cancel")
	assert.NotContains(t, out.String(), "finished")
}

// Grandchildren inherit the pipe's write end; cancellation must take the
// whole process group down, not just the direct child, or the read loop
// blocks until the grandchild exits on its own.
func TestRunKillsGrandchildrenOnCancel(t *testing.T) {
	var out strings.Builder
	r := shRunner(&out)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Run(ctx, []string{"-c", `echo started; sh -c 'sleep 30; echo finished'`})
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 10*time.Second, "grandchild kept the pipe open after cancel")
	assert.NotContains(t, out.String(), "finished")
}

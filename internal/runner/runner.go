// Package runner executes the wrapped build command and streams its output.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildwrap/internal/classify"
	"git.home.luguber.info/inful/buildwrap/internal/config"
	"git.home.luguber.info/inful/buildwrap/internal/report"
)

// Runner wraps one external build command. It is not safe for concurrent
// runs; the watch loop serializes calls.
type Runner struct {
	command    string
	locale     string
	classifier *classify.Classifier
	out        io.Writer
}

// New builds a Runner from configuration. Output (the child's passthrough
// stream and nothing else) goes to out.
func New(cfg *config.Config, out io.Writer) *Runner {
	return &Runner{
		command:    cfg.Build.Command,
		locale:     cfg.Build.LocaleOverride,
		classifier: classify.New(cfg.Rules),
		out:        out,
	}
}

// killTree signals the child's entire process group with SIGKILL.
func killTree(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return os.ErrProcessDone
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// childEnv copies the ambient environment with LANG forced to the configured
// override. Localized compiler diagnostics ("erreur:", "Warnung:") would
// silently defeat the substring rules, so this is correctness, not cosmetics.
func (r *Runner) childEnv() []string {
	ambient := os.Environ()
	env := make([]string, 0, len(ambient)+1)
	for _, kv := range ambient {
		if strings.HasPrefix(kv, "LANG=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "LANG="+r.locale)
}

// Run launches the build command with args appended verbatim, echoes its
// merged stdout+stderr line by line, and classifies each line. It blocks
// until the child closes its output and is reaped. On context cancellation
// or a read fault the child is killed before the error is returned; the
// child is never left running.
func (r *Runner) Run(ctx context.Context, args []string) (*report.Result, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, r.command, args...)
	cmd.Env = r.childEnv()
	// The child gets its own process group so cancellation can kill the
	// whole build tree. Killing only the direct child would leave its
	// grandchildren (make's compilers) holding the pipe's write end, and
	// the read loop would stay blocked until they exit on their own.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killTree(cmd)
	}
	// Backstop for writers outside the group: close the pipes instead of
	// blocking Wait forever.
	cmd.WaitDelay = 5 * time.Second

	// Merging stderr into the stdout pipe preserves the chronological
	// interleaving the OS delivers, which the passthrough must keep.
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	slog.Debug("Starting build command", "command", r.command, "args", args)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", r.command, err)
	}

	// Unblock the read loop the moment the context dies; the group kill
	// handles the writers, this handles the reader.
	readDone := make(chan struct{})
	defer close(readDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = pipe.Close()
		case <-readDone:
		}
	}()

	var matches []classify.Match
	reader := bufio.NewReader(pipe)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			// Echo before classifying so the caller sees output in
			// real time, exactly as produced.
			if _, werr := io.WriteString(r.out, line); werr != nil {
				_ = killTree(cmd)
				_ = cmd.Wait()
				return nil, fmt.Errorf("write output: %w", werr)
			}
			matches = append(matches, r.classifier.Classify(line)...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = killTree(cmd)
			_ = cmd.Wait()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read build output: %w", err)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		// Cancel already killed the process group; the pipe EOF above was
		// the kill, not a completed build.
		return nil, ctx.Err()
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait for %s: %w", r.command, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	res := &report.Result{
		Duration: time.Since(start),
		ExitCode: exitCode,
		Matches:  matches,
		RunID:    uuid.NewString(),
	}
	slog.Debug("Build command finished",
		"run_id", res.RunID,
		"exit_code", res.ExitCode,
		"matches", len(res.Matches),
		"duration", res.Duration)
	return res, nil
}

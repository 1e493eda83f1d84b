// Package report renders the post-build recap: matched lines, tally and the
// final status line.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildwrap/internal/classify"
)

// Result is what a finished build run reports on.
type Result struct {
	Duration time.Duration
	ExitCode int
	Matches  []classify.Match
	RunID    string
}

// Pluralize appends "s" to name when count exceeds one.
func Pluralize(name string, count int) string {
	if count > 1 {
		return name + "s"
	}
	return name
}

// FormatDuration renders elapsed wall-clock time to one decimal place.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1f sec", d.Seconds())
}

// SummaryClause joins per-category counts as "2 errors and 1 warning".
func SummaryClause(tally []classify.CategoryCount) string {
	clauses := make([]string, 0, len(tally))
	for _, cc := range tally {
		clauses = append(clauses, fmt.Sprintf("%d %s", cc.Count, Pluralize(cc.Category, cc.Count)))
	}
	return strings.Join(clauses, " and ")
}

// StatusLine picks the final line by priority: failure beats matches beats a
// clean run. Matches never influence the exit code, only the wording.
func StatusLine(exitCode int, matched bool, d time.Duration) string {
	dur := FormatDuration(d)
	switch {
	case exitCode != 0:
		return fmt.Sprintf("Build FAILED with exit code %d (%s)", exitCode, dur)
	case matched:
		return fmt.Sprintf("Build OK but with some warnings/errors (%s)", dur)
	default:
		return fmt.Sprintf("Build OK: no compiler warnings or errors (%s)", dur)
	}
}

// Render writes the recap block. When matches exist: a blank separator, every
// matched line in chronological order, then the "=> Found" tally. Always
// followed by a blank line and the status line. Everything goes to the one
// writer; the wrapper has no separate stderr stream.
func Render(w io.Writer, res *Result) error {
	if len(res.Matches) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		for _, m := range res.Matches {
			if _, err := fmt.Fprintln(w, m.Text); err != nil {
				return err
			}
		}
		tally := classify.Tally(res.Matches)
		if _, err := fmt.Fprintf(w, "=> Found %s\n", SummaryClause(tally)); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, StatusLine(res.ExitCode, len(res.Matches) > 0, res.Duration))
	return err
}

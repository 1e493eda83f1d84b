// Package classify tags build output lines by literal substring match.
package classify

import "strings"

// Rule pairs a category label with the literal substring that selects it.
// Rules are ordered; order determines tally display priority.
type Rule struct {
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
}

// DefaultRules match the diagnostic prefixes emitted by gcc/clang style
// compilers. Matching is case-sensitive, no regex.
func DefaultRules() []Rule {
	return []Rule{
		{Category: "error", Pattern: "error: "},
		{Category: "warning", Pattern: "warning: "},
	}
}

// Match is one classified line occurrence. Text holds the matching line with
// trailing whitespace stripped.
type Match struct {
	Category string
	Text     string
}

// CategoryCount is one tally entry, in first-seen category order.
type CategoryCount struct {
	Category string
	Count    int
}

// Classifier applies an ordered rule set to output lines.
type Classifier struct {
	rules []Rule
}

// New creates a classifier over the given rules. The slice is used as-is;
// callers must not mutate it afterwards.
func New(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify checks the line against every rule independently. A line
// containing several patterns yields one Match per matching rule.
func (c *Classifier) Classify(line string) []Match {
	var matches []Match
	for _, r := range c.rules {
		if !strings.Contains(line, r.Pattern) {
			continue
		}
		matches = append(matches, Match{Category: r.Category, Text: strings.TrimRight(line, " \t\r\n")})
	}
	return matches
}

// Tally counts matches per category, preserving the order in which each
// category was first seen in the match sequence.
func Tally(matches []Match) []CategoryCount {
	counts := make(map[string]int)
	var order []string
	for _, m := range matches {
		if _, seen := counts[m.Category]; !seen {
			order = append(order, m.Category)
		}
		counts[m.Category]++
	}
	tally := make([]CategoryCount, 0, len(order))
	for _, cat := range order {
		tally = append(tally, CategoryCount{Category: cat, Count: counts[cat]})
	}
	return tally
}

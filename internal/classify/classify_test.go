package classify

import "testing"

func TestClassifyMatchesSingleRule(t *testing.T) {
	c := New(DefaultRules())
	matches := c.Classify("main.c:10: warning: unused variable 'x'\n")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Category != "warning" {
		t.Fatalf("expected category warning, got %s", matches[0].Category)
	}
	if matches[0].Text != "main.c:10: warning: unused variable 'x'" {
		t.Fatalf("trailing newline not stripped: %q", matches[0].Text)
	}
}

func TestClassifyNoMatch(t *testing.T) {
	c := New(DefaultRules())
	if got := c.Classify("gcc -c main.c\n"); got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestClassifyCaseSensitive(t *testing.T) {
	c := New(DefaultRules())
	if got := c.Classify("Error: something\n"); got != nil {
		t.Fatalf("matching must be case-sensitive, got %v", got)
	}
}

// A line carrying several patterns is recorded once per matching rule.
func TestClassifyMultipleRulesPerLine(t *testing.T) {
	c := New(DefaultRules())
	matches := c.Classify("warning: promoted to error: -Werror\n")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Category != "error" || matches[1].Category != "warning" {
		t.Fatalf("expected rule order error,warning; got %s,%s", matches[0].Category, matches[1].Category)
	}
}

func TestTallyFirstSeenOrder(t *testing.T) {
	matches := []Match{
		{Category: "warning", Text: "w1"},
		{Category: "error", Text: "e1"},
		{Category: "warning", Text: "w2"},
	}
	tally := Tally(matches)
	if len(tally) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(tally))
	}
	if tally[0].Category != "warning" || tally[0].Count != 2 {
		t.Fatalf("unexpected first entry: %+v", tally[0])
	}
	if tally[1].Category != "error" || tally[1].Count != 1 {
		t.Fatalf("unexpected second entry: %+v", tally[1])
	}
}

func TestTallyEmpty(t *testing.T) {
	if got := Tally(nil); len(got) != 0 {
		t.Fatalf("expected empty tally, got %v", got)
	}
}

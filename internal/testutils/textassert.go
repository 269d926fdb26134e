package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the part of testing.T the asserter reports through.
type TestingT interface {
	Errorf(format string, args ...interface{})
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// TextAssertOptions controls how CLI output is compared.
type TextAssertOptions struct {
	// StripANSI compares the printed text with color escapes removed.
	// When false, escapes must match and show up as ESC[..m in the diff.
	StripANSI bool `default:"true"`
	// IgnoreTrailingWhitespace drops the padding tabwriter leaves after the last column.
	IgnoreTrailingWhitespace bool `default:"true"`
	// ColorDiff colors the failure diff for terminals.
	ColorDiff bool `default:"false"`
}

type TextOption func(*TextAssertOptions)

func WithStripANSI(strip bool) TextOption {
	return func(o *TextAssertOptions) { o.StripANSI = strip }
}

func WithIgnoreTrailingWhitespace(ignore bool) TextOption {
	return func(o *TextAssertOptions) { o.IgnoreTrailingWhitespace = ignore }
}

func WithColorDiff(enable bool) TextOption {
	return func(o *TextAssertOptions) { o.ColorDiff = enable }
}

// TextAsserter compares terminal output of the CLI renderers and reports a
// unified diff on mismatch.
type TextAsserter struct {
	t       TestingT
	options TextAssertOptions
}

func NewTextAsserter(t TestingT, opts ...TextOption) *TextAsserter {
	o := TextAssertOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &TextAsserter{t: t, options: o}
}

func (ta *TextAsserter) Options() TextAssertOptions {
	return ta.options
}

// Assert compares actual against expected after normalization.
func (ta *TextAsserter) Assert(actual, expected string) bool {
	if h, ok := ta.t.(interface{ Helper() }); ok {
		h.Helper()
	}
	diff := ta.Diff(actual, expected)
	if diff == "" {
		return true
	}
	ta.t.Errorf("Text assertion failed - unified diff:\n%s", diff)
	return false
}

// AssertLines compares actual against newline-terminated lines.
func (ta *TextAsserter) AssertLines(actual string, lines ...string) bool {
	if h, ok := ta.t.(interface{ Helper() }); ok {
		h.Helper()
	}
	expected := ""
	if len(lines) > 0 {
		expected = strings.Join(lines, "\n") + "\n"
	}
	return ta.Assert(actual, expected)
}

// Diff returns the unified diff between the normalized texts, or "" when they match.
func (ta *TextAsserter) Diff(actual, expected string) string {
	a, e := ta.normalize(actual), ta.normalize(expected)
	if a == e {
		return ""
	}
	edits := myers.ComputeEdits("", e, a)
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", e, edits))
	if ta.options.ColorDiff {
		return colorize(unified)
	}
	return unified
}

func (ta *TextAsserter) normalize(text string) string {
	if ta.options.StripANSI {
		text = ansiEscape.ReplaceAllString(text, "")
	} else {
		text = strings.ReplaceAll(text, "\x1b[", "ESC[")
	}
	if !ta.options.IgnoreTrailingWhitespace {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func colorize(diff string) string {
	red := color.New(color.FgRed)
	red.EnableColor()
	green := color.New(color.FgGreen)
	green.EnableColor()
	cyan := color.New(color.FgCyan)
	cyan.EnableColor()

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "@@"):
			lines[i] = cyan.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = red.Sprint(visibleSpace(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = green.Sprint(visibleSpace(line))
		}
	}
	return strings.Join(lines, "\n")
}

// visibleSpace shows alignment problems in table output.
func visibleSpace(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}

// Paint renders s the way c prints it on a color terminal, whatever the
// global color setting. Expected output of colored renderers is built with it.
func Paint(c *color.Color, s string) string {
	forced := *c
	forced.EnableColor()
	return forced.Sprint(s)
}

package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thebtf/wallroll/internal/prompts"
	"github.com/thebtf/wallroll/pkg/models"
)

func TestStripTags(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no tags",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "bold",
			input:    "Укажи <b>длину</b> комнаты",
			expected: "Укажи длину комнаты",
		},
		{
			name:     "code and bold",
			input:    "<b>a</b> <code>5</code>",
			expected: "a 5",
		},
		{
			name:     "attributes",
			input:    `<a href="https://example.com">link</a>`,
			expected: "link",
		},
		{
			name:     "line break",
			input:    "one<br>two<br/>three",
			expected: "one\ntwo\nthree",
		},
		{
			name:     "comparison is not a tag",
			input:    "x < 5 and y > 3",
			expected: "x < 5 and y > 3",
		},
		{
			name:     "multiline",
			input:    "<b>Results</b>\n\nrolls: <b>11</b>",
			expected: "Results\n\nrolls: 11",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripTags(tt.input))
		})
	}
}

func TestPlain(t *testing.T) {
	assert.Equal(t, "a & b ≥ 0", Plain("  <b>a</b> &amp; b ≥ 0 \n"))
}

func TestTerminal(t *testing.T) {
	got := Terminal("Укажи <b>длину</b> (например: <code>5</code>)<i>!</i>")
	assert.Equal(t, "Укажи \x1b[1mдлину\x1b[0m (например: \x1b[36m5\x1b[0m)!", got)
}

func TestPlain_Catalog(t *testing.T) {
	cat := prompts.Default()

	for _, step := range models.AllSteps() {
		if step == models.StepDone {
			continue
		}
		text := Plain(cat.Prompt(step, 1))
		assert.NotContains(t, text, "<b>", "step %s", step)
		assert.NotContains(t, text, "<code>", "step %s", step)
	}
	assert.NotContains(t, Plain(cat.Greeting()), "</b>")
}

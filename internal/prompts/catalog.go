// Package prompts manages the YAML message catalog used in replies.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/wallroll/pkg/models"
)

//go:embed default.yaml
var defaultYAML []byte

// Error message keys.
const (
	ErrParse           = "parse"
	ErrPositive        = "positive"
	ErrNonNegative     = "non_negative"
	ErrInteger         = "integer"
	ErrTooMany         = "too_many"
	ErrSessionComplete = "session_complete"
	ErrGeometry        = "geometry"
	ErrInternal        = "internal"
)

var errorKeys = []string{
	ErrParse, ErrPositive, ErrNonNegative, ErrInteger,
	ErrTooMany, ErrSessionComplete, ErrGeometry, ErrInternal,
}

// StepText holds the prompt for one questionnaire step.
type StepText struct {
	Prompt  string `yaml:"prompt"`
	Example string `yaml:"example"`
}

// File is the top-level YAML structure.
type File struct {
	Greeting      string              `yaml:"greeting"`
	RestartButton string              `yaml:"restart_button"`
	Steps         map[string]StepText `yaml:"steps"`
	Errors        map[string]string   `yaml:"errors"`
	Result        string              `yaml:"result"`
}

// Catalog holds compiled message templates.
type Catalog struct {
	greeting      string
	restartButton string
	examples      map[models.Step]string
	steps         map[models.Step]*template.Template
	errors        map[string]*template.Template
	result        *template.Template
}

// ErrorData is passed to error templates.
type ErrorData struct {
	Example string
	Max     int
}

type stepData struct {
	Example string
	Item    int
}

var funcs = template.FuncMap{
	"area": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := parse(defaultYAML, nil)
	if err != nil {
		panic("prompts: invalid built-in catalog: " + err.Error())
	}
	return c
}

// Load reads the YAML file at path and overlays it on the built-in catalog.
// An empty path or a missing file yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return parse(defaultYAML, data)
}

func parse(base, overlay []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(base, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if overlay != nil {
		if err := yaml.Unmarshal(overlay, &f); err != nil {
			return nil, fmt.Errorf("decode catalog overlay: %w", err)
		}
	}
	return compile(&f)
}

func compile(f *File) (*Catalog, error) {
	c := &Catalog{
		greeting:      strings.TrimSpace(f.Greeting),
		restartButton: f.RestartButton,
		examples:      make(map[models.Step]string),
		steps:         make(map[models.Step]*template.Template),
		errors:        make(map[string]*template.Template),
	}

	for _, step := range models.AllSteps() {
		if step == models.StepDone {
			continue
		}
		text, ok := f.Steps[step.String()]
		if !ok || text.Prompt == "" {
			return nil, fmt.Errorf("missing prompt for step %s", step)
		}
		tmpl, err := template.New(step.String()).Funcs(funcs).Parse(text.Prompt)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", step, err)
		}
		if err := tmpl.Execute(&bytes.Buffer{}, stepData{Example: text.Example, Item: 1}); err != nil {
			return nil, fmt.Errorf("render prompt %s: %w", step, err)
		}
		c.steps[step] = tmpl
		c.examples[step] = text.Example
	}

	for _, key := range errorKeys {
		src, ok := f.Errors[key]
		if !ok || src == "" {
			return nil, fmt.Errorf("missing error message %q", key)
		}
		tmpl, err := template.New(key).Funcs(funcs).Parse(src)
		if err != nil {
			return nil, fmt.Errorf("parse error message %q: %w", key, err)
		}
		if err := tmpl.Execute(&bytes.Buffer{}, ErrorData{}); err != nil {
			return nil, fmt.Errorf("render error message %q: %w", key, err)
		}
		c.errors[key] = tmpl
	}

	if f.Result == "" {
		return nil, fmt.Errorf("missing result template")
	}
	result, err := template.New("result").Funcs(funcs).Parse(f.Result)
	if err != nil {
		return nil, fmt.Errorf("parse result template: %w", err)
	}
	if err := result.Execute(&bytes.Buffer{}, models.CalculationResult{}); err != nil {
		return nil, fmt.Errorf("render result template: %w", err)
	}
	c.result = result

	return c, nil
}

// Greeting returns the welcome text sent on start and restart.
func (c *Catalog) Greeting() string {
	return c.greeting
}

// RestartButton returns the label of the restart button, also accepted as input.
func (c *Catalog) RestartButton() string {
	return c.restartButton
}

// Example returns the sample value shown for step.
func (c *Catalog) Example(step models.Step) string {
	return c.examples[step]
}

// Prompt renders the question for step. item is the window or door number.
func (c *Catalog) Prompt(step models.Step, item int) string {
	tmpl, ok := c.steps[step]
	if !ok {
		return ""
	}
	return render(tmpl, stepData{Example: c.examples[step], Item: item})
}

// Error renders the error message for key.
func (c *Catalog) Error(key string, data ErrorData) string {
	tmpl, ok := c.errors[key]
	if !ok {
		return key
	}
	return render(tmpl, data)
}

// Result renders the final report.
func (c *Catalog) Result(res models.CalculationResult) string {
	return render(c.result, res)
}

func render(tmpl *template.Template, data any) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Error().Err(err).Str("template", tmpl.Name()).Msg("Failed to render message")
		return tmpl.Name()
	}
	return buf.String()
}

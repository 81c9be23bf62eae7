package dialog

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thebtf/wallroll/internal/calc"
	"github.com/thebtf/wallroll/internal/prompts"
	"github.com/thebtf/wallroll/pkg/models"
)

// DefaultRestartTokens are accepted in addition to the catalog's restart button.
var DefaultRestartTokens = []string{"/start", "/restart"}

// ErrComputation wraps unexpected faults raised while computing a result.
var ErrComputation = errors.New("calculation failed")

// ErrSessionComplete is returned for input received after the last answer.
var ErrSessionComplete = errors.New("session already complete")

// ReplyKind tells the transport how a reply is meant.
type ReplyKind string

const (
	ReplyGreeting ReplyKind = "greeting"
	ReplyPrompt   ReplyKind = "prompt"
	ReplyError    ReplyKind = "error"
	ReplyResult   ReplyKind = "result"
)

// Reply is one outbound message.
type Reply struct {
	Kind ReplyKind `json:"kind"`
	Text string    `json:"text"`
	// OfferRestart asks the transport to show the restart button.
	OfferRestart bool `json:"offer_restart,omitempty"`
}

// Outcome summarises what a turn did to the session.
type Outcome int

const (
	// OutcomeStarted means a new session was created.
	OutcomeStarted Outcome = iota + 1
	// OutcomeAnswered means an answer was stored and the next prompt sent.
	OutcomeAnswered
	// OutcomeRejected means the answer failed validation; nothing changed.
	OutcomeRejected
	// OutcomeCompleted means the result was computed and the session cleared.
	OutcomeCompleted
	// OutcomeGeometry means the roll cannot yield a strip; the session was cleared.
	OutcomeGeometry
	// OutcomeFailed means computation faulted; the session was cleared.
	OutcomeFailed
	// OutcomeIgnored means input arrived after the last answer; nothing changed.
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStarted:
		return "started"
	case OutcomeAnswered:
		return "answered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCompleted:
		return "completed"
	case OutcomeGeometry:
		return "geometry"
	case OutcomeFailed:
		return "failed"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Turn is the result of handling one inbound message.
type Turn struct {
	Replies []Reply
	Outcome Outcome
	// Step is the step the input was addressed to.
	Step models.Step
	// Session is the state to store. It is nil when Clear is set or nothing changed.
	Session *models.Session
	Clear   bool
	// Result is set on OutcomeCompleted.
	Result *models.CalculationResult
	Err    error
}

// Changed reports whether the turn produced a session to store.
func (t Turn) Changed() bool {
	return t.Session != nil
}

// Options configures a Controller.
type Options struct {
	Catalog       *prompts.Catalog
	RestartTokens []string
	MaxOpenings   int
	Now           func() time.Time
}

// Controller routes answers to the collector for the session's cursor.
// It performs no I/O; callers load and store sessions.
type Controller struct {
	catalog   atomic.Pointer[prompts.Catalog]
	restart   map[string]struct{}
	collector FieldCollector
	now       func() time.Time
	compute   func(*models.Session) (models.CalculationResult, error)
}

// NewController creates a controller.
func NewController(opts Options) *Controller {
	c := &Controller{
		restart:   make(map[string]struct{}),
		collector: FieldCollector{MaxOpenings: opts.MaxOpenings},
		now:       opts.Now,
		compute:   calc.Compute,
	}
	if c.now == nil {
		c.now = time.Now
	}
	cat := opts.Catalog
	if cat == nil {
		cat = prompts.Default()
	}
	c.catalog.Store(cat)

	tokens := opts.RestartTokens
	if len(tokens) == 0 {
		tokens = DefaultRestartTokens
	}
	for _, t := range tokens {
		if t = normalizeToken(t); t != "" {
			c.restart[t] = struct{}{}
		}
	}
	return c
}

// SetCatalog swaps the message catalog used for subsequent replies.
func (c *Controller) SetCatalog(cat *prompts.Catalog) {
	if cat != nil {
		c.catalog.Store(cat)
	}
}

// Catalog returns the message catalog in use.
func (c *Controller) Catalog() *prompts.Catalog {
	return c.catalog.Load()
}

// IsRestart reports whether text is a restart token.
func (c *Controller) IsRestart(text string) bool {
	t := normalizeToken(text)
	if _, ok := c.restart[t]; ok {
		return true
	}
	button := normalizeToken(c.Catalog().RestartButton())
	return button != "" && t == button
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Start creates a fresh session and greets the user.
func (c *Controller) Start() Turn {
	s := models.NewSession(c.now())
	cat := c.Catalog()
	return Turn{
		Replies: []Reply{
			{Kind: ReplyGreeting, Text: cat.Greeting()},
			{Kind: ReplyPrompt, Text: cat.Prompt(models.StepLength, 0)},
		},
		Outcome: OutcomeStarted,
		Step:    models.StepLength,
		Session: s,
	}
}

// Handle processes text for the session sess, which may be nil when the
// conversation has none. sess itself is never modified.
func (c *Controller) Handle(sess *models.Session, text string) Turn {
	if sess == nil || c.IsRestart(text) {
		return c.Start()
	}
	cat := c.Catalog()

	if sess.Cursor == models.StepDone {
		return Turn{
			Replies: []Reply{{Kind: ReplyError, Text: cat.Error(prompts.ErrSessionComplete, prompts.ErrorData{}), OfferRestart: true}},
			Outcome: OutcomeIgnored,
			Step:    models.StepDone,
			Err:     ErrSessionComplete,
		}
	}

	step := sess.Cursor
	next := sess.Clone()
	if err := c.collect(next, step, text); err != nil {
		return Turn{
			Replies: []Reply{{Kind: ReplyError, Text: c.errorText(err, step)}},
			Outcome: OutcomeRejected,
			Step:    step,
			Err:     err,
		}
	}

	next.Cursor = Next(next)
	next.UpdatedAt = c.now()

	if next.Cursor == models.StepDone {
		return c.finish(next, step)
	}

	return Turn{
		Replies: []Reply{{Kind: ReplyPrompt, Text: cat.Prompt(next.Cursor, next.CurrentItem())}},
		Outcome: OutcomeAnswered,
		Step:    step,
		Session: next,
	}
}

func (c *Controller) collect(s *models.Session, step models.Step, text string) error {
	if f, ok := ScalarField(step); ok {
		return c.collector.Collect(s, f, text)
	}
	if o, ok := openingFor(step); ok {
		_, err := PairCollector{Opening: o}.Collect(s, step, text)
		return err
	}
	return fmt.Errorf("no collector for step %s", step)
}

func (c *Controller) finish(s *models.Session, step models.Step) Turn {
	cat := c.Catalog()
	res, err := c.safeCompute(s)
	if err != nil {
		var geomErr *calc.GeometryError
		if errors.As(err, &geomErr) {
			return Turn{
				Replies: []Reply{{Kind: ReplyError, Text: cat.Error(prompts.ErrGeometry, prompts.ErrorData{}), OfferRestart: true}},
				Outcome: OutcomeGeometry,
				Step:    step,
				Clear:   true,
				Err:     err,
			}
		}
		return Turn{
			Replies: []Reply{{Kind: ReplyError, Text: cat.Error(prompts.ErrInternal, prompts.ErrorData{}), OfferRestart: true}},
			Outcome: OutcomeFailed,
			Step:    step,
			Clear:   true,
			Err:     err,
		}
	}
	return Turn{
		Replies: []Reply{{Kind: ReplyResult, Text: cat.Result(res), OfferRestart: true}},
		Outcome: OutcomeCompleted,
		Step:    step,
		Clear:   true,
		Result:  &res,
	}
}

func (c *Controller) safeCompute(s *models.Session) (res models.CalculationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrComputation, r)
		}
	}()
	res, err = c.compute(s)
	var geomErr *calc.GeometryError
	if err != nil && !errors.As(err, &geomErr) {
		err = fmt.Errorf("%w: %w", ErrComputation, err)
	}
	return res, err
}

func (c *Controller) errorText(err error, step models.Step) string {
	cat := c.Catalog()
	data := prompts.ErrorData{Example: cat.Example(step)}

	var inErr *InputError
	if !errors.As(err, &inErr) {
		return cat.Error(prompts.ErrInternal, data)
	}
	switch inErr.Kind {
	case KindParse:
		return cat.Error(prompts.ErrParse, data)
	case KindIntegrality:
		return cat.Error(prompts.ErrInteger, data)
	}
	f, scalar := ScalarField(step)
	switch {
	case inErr.Max > 0:
		data.Max = inErr.Max
		return cat.Error(prompts.ErrTooMany, data)
	case scalar && f.Integral:
		return cat.Error(prompts.ErrInteger, data)
	case inErr.Constraint == NonNegative:
		return cat.Error(prompts.ErrNonNegative, data)
	default:
		return cat.Error(prompts.ErrPositive, data)
	}
}

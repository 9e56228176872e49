package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clawcart/clawcart/internal/models"
	"github.com/clawcart/clawcart/internal/telemetry"
)

// Execution modes reported in Result.Mode.
const (
	ModeReplay = "replay"
	ModeLearn  = "learn"
)

// Step outcome tags recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeFallback = "needs_fallback"
	outcomeFatal    = "fatal"
)

// Request describes one checkout run.
type Request struct {
	OrderID    string
	ProductURL string
	Profile    Profile

	// DryRun walks the flow but stops before the final submission; nothing
	// is purchased, learned, or counted.
	DryRun bool

	// OnStep, when set, is called after every executed step. Activities use
	// it to heartbeat so a wedged browser is detected by timeout rather
	// than by a stuck workflow.
	OnStep func(index int, note string)
}

// Result is the terminal report of a checkout run.
type Result struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode"`
	Domain  string `json:"domain"`

	RetailerOrderID     string `json:"retailer_order_id,omitempty"`
	ExecutionMs         int64  `json:"execution_ms"`
	StepsExecuted       int    `json:"steps_executed"`
	FallbacksUsed       int    `json:"fallbacks_used"`
	DryRun              bool   `json:"dry_run,omitempty"`
	StoppedBeforeSubmit bool   `json:"stopped_before_submit,omitempty"`
	FailureReason       string `json:"failure_reason,omitempty"`
}

// ErrCancelled marks a run stopped by caller cancellation; the order goes
// to cancelled, never failed, on this error.
var ErrCancelled = errors.New("checkout cancelled")

// FlowRepository is the slice of flow persistence the engine needs.
// *FlowStore implements it; tests substitute an in-memory fake.
type FlowRepository interface {
	ForDomain(ctx context.Context, domain string) (*models.CheckoutFlow, error)
	Trusted(flow *models.CheckoutFlow) bool
	SaveLearned(ctx context.Context, flow *models.CheckoutFlow) error
	ApplyOutcome(ctx context.Context, domain string, o Outcome) error
}

// Engine executes checkouts. Trusted flows replay their recorded steps with
// a one-step reasoner rescue on mismatch; untrusted or unknown merchants
// are learned step by step with the reasoner driving.
type Engine struct {
	flows     FlowRepository
	reasoner  Reasoner
	newDriver func(ctx context.Context, productURL string) (Driver, error)

	stepBudget int
	timeout    time.Duration
}

func NewEngine(flows FlowRepository, reasoner Reasoner, newDriver func(ctx context.Context, productURL string) (Driver, error), stepBudget int, timeout time.Duration) *Engine {
	return &Engine{
		flows:      flows,
		reasoner:   reasoner,
		newDriver:  newDriver,
		stepBudget: stepBudget,
		timeout:    timeout,
	}
}

func (e *Engine) Execute(ctx context.Context, req Request) (*Result, error) {
	domain, err := DomainFromURL(req.ProductURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.execute",
		trace.WithAttributes(
			attribute.String("checkout.domain", domain),
			attribute.String("checkout.order_id", req.OrderID),
			attribute.Bool("checkout.dry_run", req.DryRun),
		),
	)
	defer span.End()

	driver, err := e.newDriver(ctx, req.ProductURL)
	if err != nil {
		return nil, fmt.Errorf("start browser for %s: %w", domain, err)
	}
	defer driver.Close(context.WithoutCancel(ctx))

	if _, err := driver.Navigate(ctx, req.ProductURL); err != nil {
		return nil, fmt.Errorf("open product page: %w", err)
	}

	started := time.Now()
	var res *Result

	flow, ferr := e.flows.ForDomain(ctx, domain)
	if ferr != nil && !errors.Is(ferr, ErrFlowNotFound) {
		return nil, ferr
	}

	if flow != nil && e.flows.Trusted(flow) {
		res, err = e.replay(ctx, driver, flow, req, domain)
	} else {
		relearn := flow != nil
		res, err = e.learn(ctx, driver, req, domain, relearn)
	}
	if err != nil {
		return nil, err
	}

	res.Domain = domain
	res.ExecutionMs = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.Bool("checkout.success", res.Success),
		attribute.String("checkout.mode", res.Mode),
		attribute.Int("checkout.steps", res.StepsExecuted),
	)
	slog.InfoContext(ctx, "checkout finished",
		slog.String("order_id", req.OrderID),
		slog.String("domain", domain),
		slog.String("mode", res.Mode),
		slog.Bool("success", res.Success),
		slog.Int("steps", res.StepsExecuted),
		slog.Int("fallbacks", res.FallbacksUsed),
	)
	return res, nil
}

// replay walks the recorded steps. A step that fails gets exactly one
// reasoner rescue attempt; a failed rescue ends the run. Outcomes are
// written back unless the run is a dry run.
func (e *Engine) replay(ctx context.Context, driver Driver, flow *models.CheckoutFlow, req Request, domain string) (*Result, error) {
	res := &Result{Mode: ModeReplay, DryRun: req.DryRun}
	started := time.Now()
	var stepResults []StepResult

	finish := func(success bool, reason string) (*Result, error) {
		res.Success = success
		res.FailureReason = reason
		if !req.DryRun {
			outcome := Outcome{
				Success:     success,
				ExecutionMs: time.Since(started).Milliseconds(),
				Error:       reason,
				Steps:       stepResults,
			}
			if err := e.flows.ApplyOutcome(ctx, domain, outcome); err != nil {
				slog.WarnContext(ctx, "flow outcome not recorded",
					slog.String("domain", domain),
					slog.String("error", err.Error()),
				)
			}
		}
		return res, nil
	}

	for i := range flow.Steps {
		step := &flow.Steps[i]

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: at step %d", ErrCancelled, step.Index)
		}
		if req.DryRun && isFinalSubmission(step.Action, step.Phase) {
			res.StoppedBeforeSubmit = true
			return finish(true, "")
		}

		action := step.Action
		action.Value = Substitute(action.Value, req.Profile)
		action.Text = Substitute(action.Text, req.Profile)

		state, err := driver.Perform(ctx, action)
		if err == nil && step.ExpectedURLPattern != "" && !strings.Contains(state.URL, step.ExpectedURLPattern) {
			err = fmt.Errorf("landed on %s, expected %q", state.URL, step.ExpectedURLPattern)
		}

		res.StepsExecuted++
		if req.OnStep != nil {
			req.OnStep(step.Index, string(step.Phase))
		}

		if err == nil {
			stepResults = append(stepResults, StepResult{Index: step.Index, Succeeded: true})
			telemetry.RecordCheckoutStep(ctx, domain, outcomeOK)
			continue
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: at step %d", ErrCancelled, step.Index)
		}

		telemetry.RecordCheckoutStep(ctx, domain, outcomeFallback)
		updated, rerr := e.rescueStep(ctx, driver, flow, step, req.Profile, err)
		if rerr != nil {
			if errors.Is(rerr, ErrCancelled) || ctx.Err() != nil {
				return nil, rerr
			}
			stepResults = append(stepResults, StepResult{Index: step.Index})
			telemetry.RecordCheckoutStep(ctx, domain, outcomeFatal)
			telemetry.RecordCheckoutFallback(ctx, domain, false)
			return finish(false, fmt.Sprintf("step %d failed: %v", step.Index, rerr))
		}
		res.FallbacksUsed++
		stepResults = append(stepResults, StepResult{Index: step.Index, Succeeded: true, Rescued: true, UpdatedAction: updated})
		telemetry.RecordCheckoutFallback(ctx, domain, true)
	}

	// All recorded steps ran; read the final page for the confirmation id.
	if state, err := driver.State(ctx); err == nil {
		res.RetailerOrderID = extractOrderID(state)
	}
	return finish(true, "")
}

// rescueStep asks the reasoner for one equivalent action and performs it.
// The rescue is single-shot: no second proposal is requested.
func (e *Engine) rescueStep(ctx context.Context, driver Driver, flow *models.CheckoutFlow, step *models.FlowStep, profile Profile, cause error) (*models.StepAction, error) {
	state, serr := driver.State(ctx)
	if serr != nil {
		return nil, serr
	}
	state.Content = Redact(state.Content, profile)

	proposal, err := e.reasoner.NextStep(ctx, ReasonRequest{
		Goal:         "complete the checkout for the item already in progress",
		Page:         state,
		Hints:        flow.Hints,
		FailedAction: &step.Action,
		FailureError: cause.Error(),
	})
	if err != nil {
		return nil, fmt.Errorf("rescue proposal: %w", err)
	}
	if proposal.Abandon {
		return nil, fmt.Errorf("reasoner abandoned: %s", proposal.Reason)
	}
	if proposal.Done {
		// The page already moved past the recorded step.
		return nil, nil
	}

	performed := proposal.Action
	performed.Value = Substitute(performed.Value, profile)
	performed.Text = Substitute(performed.Text, profile)
	if _, err := driver.Perform(ctx, performed); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: during rescue", ErrCancelled)
		}
		return nil, fmt.Errorf("rescue action failed: %w", err)
	}
	// Persist the template form, not the substituted values.
	replacement := proposal.Action
	return &replacement, nil
}

// learn drives the checkout with the reasoner proposing every step, and on
// success persists the sequence as the domain's flow.
func (e *Engine) learn(ctx context.Context, driver Driver, req Request, domain string, relearn bool) (*Result, error) {
	res := &Result{Mode: ModeLearn, DryRun: req.DryRun}
	var learned []models.FlowStep
	platform := ""

	for i := 0; i < e.stepBudget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: while learning", ErrCancelled)
		}

		state, err := driver.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("read page: %w", err)
		}
		if platform == "" {
			platform = DetectPlatform(state)
		}
		state.Content = Redact(state.Content, req.Profile)

		proposal, err := e.reasoner.NextStep(ctx, ReasonRequest{
			Goal: "buy the product on the starting page, through to the order confirmation",
			Page: state,
		})
		if err != nil {
			return nil, fmt.Errorf("learning proposal: %w", err)
		}

		if proposal.Done {
			res.Success = true
			res.RetailerOrderID = proposal.RetailerOrderID
			if res.RetailerOrderID == "" {
				res.RetailerOrderID = extractOrderID(state)
			}
			break
		}
		if proposal.Abandon {
			res.FailureReason = "reasoner abandoned: " + proposal.Reason
			break
		}
		if req.DryRun && isFinalSubmission(proposal.Action, proposal.Phase) {
			res.Success = true
			res.StoppedBeforeSubmit = true
			break
		}

		performed := proposal.Action
		performed.Value = Substitute(performed.Value, req.Profile)
		performed.Text = Substitute(performed.Text, req.Profile)

		after, err := driver.Perform(ctx, performed)
		res.StepsExecuted++
		if req.OnStep != nil {
			req.OnStep(res.StepsExecuted, string(proposal.Phase))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: while learning", ErrCancelled)
			}
			telemetry.RecordCheckoutStep(ctx, domain, outcomeFatal)
			res.FailureReason = fmt.Sprintf("learning step %d failed: %v", res.StepsExecuted, err)
			break
		}
		telemetry.RecordCheckoutStep(ctx, domain, outcomeOK)

		learned = append(learned, models.FlowStep{
			Index:              len(learned),
			Phase:              proposal.Phase,
			Action:             proposal.Action,
			ExpectedURLPattern: urlPattern(after.URL),
		})
	}

	if !res.Success && res.FailureReason == "" {
		res.FailureReason = fmt.Sprintf("step budget of %d exhausted", e.stepBudget)
	}

	if res.Success && !req.DryRun && len(learned) > 0 {
		flow := &models.CheckoutFlow{
			Domain:        domain,
			Platform:      platform,
			Steps:         learned,
			GuestCheckout: isGuestFlow(learned),
		}
		if err := e.flows.SaveLearned(ctx, flow); err != nil {
			slog.WarnContext(ctx, "learned flow not saved",
				slog.String("domain", domain),
				slog.String("error", err.Error()),
			)
		} else {
			var stepResults []StepResult
			for _, s := range learned {
				stepResults = append(stepResults, StepResult{Index: s.Index, Succeeded: true})
			}
			if err := e.flows.ApplyOutcome(ctx, domain, Outcome{Success: true, Steps: stepResults}); err != nil {
				slog.WarnContext(ctx, "learned flow outcome not recorded",
					slog.String("domain", domain),
					slog.String("error", err.Error()),
				)
			}
			telemetry.RecordFlowLearned(ctx, domain, relearn)
		}
	}
	if !res.Success && !req.DryRun && relearn {
		// A failed relearn still counts against the existing flow.
		if err := e.flows.ApplyOutcome(ctx, domain, Outcome{Success: false, Error: res.FailureReason}); err != nil && !errors.Is(err, ErrFlowNotFound) {
			slog.WarnContext(ctx, "relearn failure not recorded",
				slog.String("domain", domain),
				slog.String("error", err.Error()),
			)
		}
	}
	return res, nil
}

var accountMarkers = []string{"login", "log in", "sign in", "sign-in", "password", "create account", "register"}

// isGuestFlow reports whether a learned flow completed without touching an
// account surface. A step that fills a password or clicks through a login
// form marks the merchant as requiring an account.
func isGuestFlow(steps []models.FlowStep) bool {
	for _, step := range steps {
		a := step.Action
		needle := strings.ToLower(strings.Join([]string{a.Selector, a.Text, a.AriaLabel, a.URL}, " "))
		for _, marker := range accountMarkers {
			if strings.Contains(needle, marker) {
				return false
			}
		}
	}
	return true
}

// isFinalSubmission identifies the click that places the order. Dry runs
// stop immediately before it.
func isFinalSubmission(action models.StepAction, phase models.CheckoutPhase) bool {
	if action.Type != models.ActionClick {
		return false
	}
	if phase == models.PhaseReview {
		return true
	}
	needle := strings.ToLower(action.Text + " " + action.AriaLabel + " " + action.Selector)
	for _, marker := range []string{"place order", "place-order", "pay now", "complete purchase", "submit-order"} {
		if strings.Contains(needle, marker) {
			return true
		}
	}
	return false
}

// urlPattern reduces a landed URL to its path, the stable part across runs.
func urlPattern(rawURL string) string {
	if i := strings.Index(rawURL, "?"); i >= 0 {
		rawURL = rawURL[:i]
	}
	return rawURL
}

var orderIDMarkers = []string{"order #", "order number", "confirmation number", "order id"}

// extractOrderID scrapes a retailer order reference from confirmation page
// text. Best effort; an empty result is fine.
func extractOrderID(state PageState) string {
	lower := strings.ToLower(state.Content)
	for _, marker := range orderIDMarkers {
		i := strings.Index(lower, marker)
		if i < 0 {
			continue
		}
		rest := state.Content[i+len(marker):]
		rest = strings.TrimLeft(rest, ": #")
		var id strings.Builder
		for _, r := range rest {
			if r == ' ' || r == '\n' || r == '.' || r == ',' || r == '<' {
				break
			}
			id.WriteRune(r)
		}
		if id.Len() >= 4 {
			return id.String()
		}
	}
	return ""
}

// DetectPlatform fingerprints the merchant's storefront software from page
// content. Used only as a hint on the stored flow.
func DetectPlatform(state PageState) string {
	body := strings.ToLower(state.Content + " " + state.URL)
	switch {
	case strings.Contains(body, "shopify") || strings.Contains(body, "/cdn/shop/"):
		return "shopify"
	case strings.Contains(body, "woocommerce"):
		return "woocommerce"
	case strings.Contains(body, "magento") || strings.Contains(body, "mage-"):
		return "magento"
	case strings.Contains(body, "bigcommerce"):
		return "bigcommerce"
	}
	return "custom"
}

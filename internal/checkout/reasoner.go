package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clawcart/clawcart/internal/models"
)

// Proposal is one reasoned next step. Exactly one of Action, Done, or
// Abandon is meaningful per proposal.
type Proposal struct {
	Action models.StepAction    `json:"action"`
	Phase  models.CheckoutPhase `json:"phase"`
	// Done means the page shows checkout has completed; RetailerOrderID is
	// extracted from the confirmation when visible.
	Done            bool   `json:"done"`
	RetailerOrderID string `json:"retailer_order_id,omitempty"`
	// Abandon means no path forward exists (hard captcha, login wall, out
	// of stock). The run fails without further fallback.
	Abandon bool   `json:"abandon"`
	Reason  string `json:"reason,omitempty"`
}

// ReasonRequest is the page context handed to the reasoner. Values are
// pre-redacted; the reasoner proposes template placeholders, never card
// data.
type ReasonRequest struct {
	Goal  string
	Page  PageState
	Hints string
	// FailedAction is set when rescuing a single replay step; the reasoner
	// should propose an equivalent action for the current page.
	FailedAction *models.StepAction
	FailureError string
}

// Reasoner picks the next checkout action from page context. It is the
// slow path: learning a new merchant, or rescuing one failed replay step.
type Reasoner interface {
	NextStep(ctx context.Context, req ReasonRequest) (*Proposal, error)
}

const reasonerSystem = `You drive a browser through an online checkout.
Given the current page, respond with a single JSON object and nothing else:
{"action":{"type":"click|fill|select|wait|navigate","selector":"...","value":"..."},"phase":"product|cart|checkout|shipping|payment|review|confirmation|other","done":false,"abandon":false,"reason":"..."}
For form values use template placeholders only: {card.number} {card.exp_month} {card.exp_year} {card.cvc} {card.holder} {address.full_name} {address.street} {address.city} {address.state} {address.zip} {address.country} {user.email} {user.phone}.
Set done=true when the page confirms the order, and include retailer_order_id if shown.
Set abandon=true when checkout cannot proceed (captcha, forced login, out of stock).`

// AnthropicReasoner implements Reasoner over the Anthropic messages API.
type AnthropicReasoner struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
}

func NewAnthropicReasoner(apiKey, model string, timeout time.Duration) *AnthropicReasoner {
	return &AnthropicReasoner{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}
}

func (r *AnthropicReasoner) NextStep(ctx context.Context, req ReasonRequest) (*Proposal, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("checkout").Start(ctx, "reasoner.next_step",
		trace.WithAttributes(
			attribute.String("gen_ai.system", "anthropic"),
			attribute.String("gen_ai.request.model", r.model),
		),
	)
	defer span.End()

	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: reasonerSystem},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req))),
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("reasoner request: %w", err)
	}

	content := ""
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return parseProposal(content)
}

func buildPrompt(req ReasonRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\nCurrent page:\nURL: %s\nTitle: %s\n\n%s\n", req.Goal, req.Page.URL, req.Page.Title, req.Page.Content)
	if req.Hints != "" {
		fmt.Fprintf(&b, "\nMerchant hints: %s\n", req.Hints)
	}
	if req.FailedAction != nil {
		raw, _ := json.Marshal(req.FailedAction)
		fmt.Fprintf(&b, "\nA recorded step just failed (%s): %s\nPropose one equivalent action for the page above, or abandon if none exists.\n", req.FailureError, raw)
	}
	return b.String()
}

// parseProposal tolerates a proposal wrapped in prose or a code fence.
func parseProposal(content string) (*Proposal, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("reasoner returned no JSON object: %q", content)
	}
	var p Proposal
	if err := json.Unmarshal([]byte(content[start:end+1]), &p); err != nil {
		return nil, fmt.Errorf("decode reasoner proposal: %w", err)
	}
	if p.Phase == "" {
		p.Phase = models.PhaseOther
	}
	return &p, nil
}

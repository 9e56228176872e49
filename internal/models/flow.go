package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckoutPhase string

const (
	PhaseProduct      CheckoutPhase = "product"
	PhaseCart         CheckoutPhase = "cart"
	PhaseCheckout     CheckoutPhase = "checkout"
	PhaseShipping     CheckoutPhase = "shipping"
	PhasePayment      CheckoutPhase = "payment"
	PhaseReview       CheckoutPhase = "review"
	PhaseConfirmation CheckoutPhase = "confirmation"
	PhaseOther        CheckoutPhase = "other"
)

type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionFill     ActionType = "fill"
	ActionSelect   ActionType = "select"
	ActionWait     ActionType = "wait"
	ActionNavigate ActionType = "navigate"
	ActionScroll   ActionType = "scroll"
	ActionPressKey ActionType = "press_key"
)

// StepAction describes one replayable browser action. Value may carry
// template variables such as {card.number} or {address.street} that are
// substituted from the order context at execution time.
type StepAction struct {
	Type      ActionType `gorm:"type:varchar(16);not null" json:"type"`
	Selector  string     `json:"selector,omitempty"`
	Text      string     `json:"text,omitempty"`
	AriaLabel string     `json:"aria_label,omitempty"`
	Value     string     `json:"value,omitempty"`
	URL       string     `json:"url,omitempty"`
	WaitMs    int        `json:"wait_ms,omitempty"`
}

// FlowStep is one recorded step of a learned checkout flow, with per-step
// reliability bookkeeping so replay trust degrades site-by-site instead of
// all-or-nothing.
type FlowStep struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	FlowID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`

	Index int           `gorm:"not null" json:"index"`
	Phase CheckoutPhase `gorm:"type:varchar(16);not null" json:"phase"`

	Action             StepAction `gorm:"embedded;embeddedPrefix:action_" json:"action"`
	ExpectedURLPattern string     `json:"expected_url_pattern,omitempty"`

	SuccessCount int `gorm:"not null;default:0" json:"success_count"`
	FailureCount int `gorm:"not null;default:0" json:"failure_count"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (s *FlowStep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Attempts returns the number of recorded outcomes for the step.
func (s *FlowStep) Attempts() int {
	return s.SuccessCount + s.FailureCount
}

// Reliability is success/(success+fail); zero when the step has never run.
func (s *FlowStep) Reliability() float64 {
	total := s.Attempts()
	if total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(total)
}

// CheckoutFlow is the learned automation recipe for one merchant domain.
// Mutated only by the checkout engine's apply-outcome path, under a
// compare-and-swap on Version so concurrent orders on the same merchant
// cannot drop each other's reliability updates.
type CheckoutFlow struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Domain string    `gorm:"uniqueIndex;not null" json:"domain"`

	Platform           string `gorm:"type:varchar(32);default:'unknown'" json:"platform"`
	CheckoutURLPattern string `json:"checkout_url_pattern,omitempty"`

	Steps []FlowStep `gorm:"foreignKey:FlowID" json:"steps,omitempty"`

	SuccessCount        int `gorm:"not null;default:0" json:"success_count"`
	FailureCount        int `gorm:"not null;default:0" json:"failure_count"`
	ConsecutiveFailures int `gorm:"not null;default:0" json:"consecutive_failures"`

	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	LastError   string     `json:"last_error,omitempty"`

	AvgExecutionMs float64 `json:"avg_execution_ms,omitempty"`

	// Hints is free text handed to the fallback reasoner alongside page
	// context ("payment iframe loads late", "postcode field splits in two").
	Hints string `json:"hints,omitempty"`

	RequiresLogin   bool `json:"requires_login"`
	RequiresCaptcha bool `json:"requires_captcha"`
	RequiresProxy   bool `json:"requires_proxy"`
	GuestCheckout   bool `json:"guest_checkout"`

	Version int `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (f *CheckoutFlow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (f *CheckoutFlow) Attempts() int {
	return f.SuccessCount + f.FailureCount
}

func (f *CheckoutFlow) SuccessRate() float64 {
	total := f.Attempts()
	if total == 0 {
		return 0
	}
	return float64(f.SuccessCount) / float64(total)
}

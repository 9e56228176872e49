package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clawcart/clawcart/internal/models"
)

var (
	ErrFlowNotFound = errors.New("no learned flow for domain")
	// ErrFlowConflict is returned when concurrent outcome updates exhaust
	// the compare-and-swap retries.
	ErrFlowConflict = errors.New("flow update conflict")
)

// Flow health classification, derived from counters rather than stored.
const (
	HealthUnproven     = "unproven"
	HealthHealthy      = "healthy"
	HealthDegraded     = "degraded"
	HealthNeedsRelearn = "needs_relearn"
)

// StepResult is the per-step outcome of one checkout run.
type StepResult struct {
	Index    int
	Succeeded bool
	// Rescued marks a step that failed on replay and was then completed by
	// the fallback reasoner. It counts one failure for the recorded action
	// and one success for the step overall.
	Rescued bool
	// UpdatedAction, when set, replaces the recorded action with the one
	// the fallback found working, so the flow self-heals.
	UpdatedAction *models.StepAction
}

// Outcome is what a finished checkout run reports back to the store.
type Outcome struct {
	Success     bool
	ExecutionMs int64
	Error       string
	Steps       []StepResult
}

// FlowStore owns all reads and writes of learned checkout flows. Outcome
// application runs under a version compare-and-swap so two orders finishing
// against the same merchant cannot drop each other's counter updates.
type FlowStore struct {
	db *gorm.DB

	minStepReliability float64
	relearnAfter       int
}

func NewFlowStore(db *gorm.DB, minStepReliability float64, relearnAfter int) *FlowStore {
	return &FlowStore{db: db, minStepReliability: minStepReliability, relearnAfter: relearnAfter}
}

// DomainFromURL normalizes a product URL to the flow's merchant key.
func DomainFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("cannot derive merchant domain from %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	return host, nil
}

func (s *FlowStore) ForDomain(ctx context.Context, domain string) (*models.CheckoutFlow, error) {
	var flow models.CheckoutFlow
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("flow_steps.index ASC") }).
		Where("domain = ?", domain).
		First(&flow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("load flow for %s: %w", domain, err)
	}
	return &flow, nil
}

// Trusted reports whether a flow should be replayed rather than relearned.
// A flow earns trust from at least one aggregate success, loses it after
// enough consecutive failures, and is distrusted when any step has dropped
// below the per-step reliability floor. A step with zero recorded attempts
// has no evidence at all, so its flow is never replayed unattended.
func (s *FlowStore) Trusted(flow *models.CheckoutFlow) bool {
	if flow == nil || len(flow.Steps) == 0 {
		return false
	}
	if flow.SuccessCount == 0 {
		return false
	}
	if flow.ConsecutiveFailures >= s.relearnAfter {
		return false
	}
	for i := range flow.Steps {
		step := &flow.Steps[i]
		if step.Attempts() == 0 || step.Reliability() < s.minStepReliability {
			return false
		}
	}
	return true
}

// Health classifies a flow for the management API.
func (s *FlowStore) Health(flow *models.CheckoutFlow) string {
	switch {
	case flow.Attempts() == 0:
		return HealthUnproven
	case flow.ConsecutiveFailures >= s.relearnAfter:
		return HealthNeedsRelearn
	case flow.SuccessRate() >= 0.8 && flow.ConsecutiveFailures == 0:
		return HealthHealthy
	default:
		return HealthDegraded
	}
}

// SaveLearned stores a freshly learned step sequence. When a flow already
// exists for the domain its steps are replaced and its reliability counters
// reset; the merchant changed, so history stopped being evidence.
func (s *FlowStore) SaveLearned(ctx context.Context, learned *models.CheckoutFlow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CheckoutFlow
		err := tx.Where("domain = ?", learned.Domain).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(learned).Error
		case err != nil:
			return err
		}

		if err := tx.Where("flow_id = ?", existing.ID).Delete(&models.FlowStep{}).Error; err != nil {
			return err
		}
		for i := range learned.Steps {
			learned.Steps[i].FlowID = existing.ID
		}
		if err := tx.Create(&learned.Steps).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"platform":             learned.Platform,
			"checkout_url_pattern": learned.CheckoutURLPattern,
			"success_count":        0,
			"failure_count":        0,
			"consecutive_failures": 0,
			"last_error":           "",
			"guest_checkout":       learned.GuestCheckout,
			"requires_login":       learned.RequiresLogin,
			"requires_captcha":     learned.RequiresCaptcha,
			"version":              gorm.Expr("version + 1"),
		}
		return tx.Model(&models.CheckoutFlow{}).Where("id = ?", existing.ID).Updates(updates).Error
	})
}

// ApplyOutcome folds one run's result into the flow's counters under a
// version compare-and-swap, retrying on conflict with a fresh read.
func (s *FlowStore) ApplyOutcome(ctx context.Context, domain string, o Outcome) error {
	for attempt := 0; attempt < 3; attempt++ {
		flow, err := s.ForDomain(ctx, domain)
		if err != nil {
			return err
		}
		prevVersion := flow.Version
		applyOutcome(flow, o, time.Now().UTC())

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.CheckoutFlow{}).
				Where("id = ? AND version = ?", flow.ID, prevVersion).
				Updates(map[string]interface{}{
					"success_count":        flow.SuccessCount,
					"failure_count":        flow.FailureCount,
					"consecutive_failures": flow.ConsecutiveFailures,
					"last_success":         flow.LastSuccess,
					"last_failure":         flow.LastFailure,
					"last_error":           flow.LastError,
					"avg_execution_ms":     flow.AvgExecutionMs,
					"version":              prevVersion + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrFlowConflict
			}
			for i := range flow.Steps {
				step := &flow.Steps[i]
				err := tx.Model(&models.FlowStep{}).Where("id = ?", step.ID).
					Updates(map[string]interface{}{
						"success_count":   step.SuccessCount,
						"failure_count":   step.FailureCount,
						"action_type":     step.Action.Type,
						"action_selector": step.Action.Selector,
						"action_value":    step.Action.Value,
						"action_text":     step.Action.Text,
					}).Error
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrFlowConflict) {
			return err
		}
		slog.WarnContext(ctx, "flow outcome conflict, retrying",
			slog.String("domain", domain),
			slog.Int("attempt", attempt+1),
		)
	}
	return fmt.Errorf("apply outcome for %s: %w", domain, ErrFlowConflict)
}

// applyOutcome is the pure counter update shared by ApplyOutcome and its
// tests. Aggregate counters move exactly once per run; a rescued step books
// one failure for the recorded action and one success for the step.
func applyOutcome(flow *models.CheckoutFlow, o Outcome, now time.Time) {
	if o.Success {
		flow.SuccessCount++
		flow.ConsecutiveFailures = 0
		flow.LastSuccess = &now
		if flow.AvgExecutionMs == 0 {
			flow.AvgExecutionMs = float64(o.ExecutionMs)
		} else {
			flow.AvgExecutionMs = flow.AvgExecutionMs*0.8 + float64(o.ExecutionMs)*0.2
		}
	} else {
		flow.FailureCount++
		flow.ConsecutiveFailures++
		flow.LastFailure = &now
		flow.LastError = o.Error
	}

	byIndex := make(map[int]*models.FlowStep, len(flow.Steps))
	for i := range flow.Steps {
		byIndex[flow.Steps[i].Index] = &flow.Steps[i]
	}
	for _, r := range o.Steps {
		step, ok := byIndex[r.Index]
		if !ok {
			continue
		}
		switch {
		case r.Rescued:
			step.FailureCount++
			step.SuccessCount++
		case r.Succeeded:
			step.SuccessCount++
		default:
			step.FailureCount++
		}
		if r.UpdatedAction != nil {
			step.Action = *r.UpdatedAction
		}
	}
}

func (s *FlowStore) List(ctx context.Context) ([]models.CheckoutFlow, error) {
	var flows []models.CheckoutFlow
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("flow_steps.index ASC") }).
		Order("domain ASC").
		Find(&flows).Error
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	return flows, nil
}

// Delete drops a learned flow so the next purchase on the domain relearns
// from scratch.
func (s *FlowStore) Delete(ctx context.Context, domain string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var flow models.CheckoutFlow
		if err := tx.Where("domain = ?", domain).First(&flow).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrFlowNotFound
			}
			return err
		}
		if err := tx.Where("flow_id = ?", flow.ID).Delete(&models.FlowStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&flow).Error
	})
}

package session

import (
	"context"
	"errors"
	"fmt"

	"blurclient/internal/domain"
	"blurclient/internal/entitlement"
	"blurclient/internal/identity"
	"blurclient/internal/infra"
	"blurclient/internal/intake"
	"blurclient/internal/providers/blur"
)

// State enumerates the upload session lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StatePreviewing State = "previewing"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Processor is the remote collaborator that blurs images.
type Processor interface {
	Process(ctx context.Context, req blur.ProcessRequest) (*blur.Result, error)
}

// Events receives user-visible session notifications. The local preview and
// the remote result are two independent, ordered events: PreviewReady always
// fires before the network call, ResultReady only after remote success.
type Events interface {
	PreviewReady(dataURL string)
	ResultReady(result *blur.Result)
	UpgradeRequired(reason string)
	Failed(reason string)
}

type noopEvents struct{}

func (noopEvents) PreviewReady(string)      {}
func (noopEvents) ResultReady(*blur.Result) {}
func (noopEvents) UpgradeRequired(string)   {}
func (noopEvents) Failed(string)            {}

// Orchestrator drives one upload session at a time through the
// idle → previewing → submitting → completed/failed lifecycle. It consults
// the entitlement store before any network call and records usage only on
// confirmed remote success, so a failed or rejected attempt never consumes
// quota. Not safe for concurrent use; there is one logical thread of
// control, matching the single-session model.
type Orchestrator struct {
	processor Processor
	ident     *identity.Store
	ent       *entitlement.Store
	events    Events
	logger    *infra.Logger

	state    State
	original *intake.Image
	result   *blur.Result
}

func New(processor Processor, ident *identity.Store, ent *entitlement.Store, events Events, logger *infra.Logger) *Orchestrator {
	if events == nil {
		events = noopEvents{}
	}
	if logger == nil {
		l := infra.DiscardLogger()
		logger = &l
	}
	return &Orchestrator{
		processor: processor,
		ident:     ident,
		ent:       ent,
		events:    events,
		logger:    logger,
		state:     StateIdle,
	}
}

// State returns the current session state.
func (o *Orchestrator) State() State {
	return o.state
}

// Original returns the accepted source image, if any.
func (o *Orchestrator) Original() *intake.Image {
	return o.original
}

// Result returns the blurred result once the session has completed.
func (o *Orchestrator) Result() *blur.Result {
	return o.result
}

// Accept starts a session with a validated image. The original renders
// immediately via PreviewReady without waiting for any remote work. Only one
// session is active at a time; Accept outside idle is rejected.
func (o *Orchestrator) Accept(img *intake.Image) error {
	if o.state != StateIdle {
		return fmt.Errorf("%w: state %s", domain.ErrSessionBusy, o.state)
	}
	if img == nil {
		return errors.New("session: image is required")
	}
	o.original = img
	o.state = StatePreviewing
	o.events.PreviewReady(img.DataURL())
	return nil
}

// Submit sends the accepted image to the remote service. The quota gate runs
// first: a locked identity that already spent today's free calls is turned
// back before any network traffic, with an upgrade prompt instead of an
// error. The gate is advisory; the backend enforces independently and its
// entitlement rejections are classified the same way.
func (o *Orchestrator) Submit(ctx context.Context) error {
	if o.state == StateSubmitting {
		return fmt.Errorf("%w: submission in flight", domain.ErrSessionBusy)
	}
	if o.state != StatePreviewing {
		return fmt.Errorf("session: submit from state %s", o.state)
	}

	unlocked, err := o.ent.IsUnlocked(ctx)
	if err != nil {
		return fmt.Errorf("session: read entitlement: %w", err)
	}
	if !unlocked {
		used, err := o.ent.TodaysUsage(ctx)
		if err != nil {
			return fmt.Errorf("session: read usage: %w", err)
		}
		if used >= entitlement.FreeDailyLimit {
			o.clear()
			o.events.UpgradeRequired("daily free limit reached")
			return domain.ErrQuotaExhausted
		}
	}

	userID, err := o.ident.Ensure(ctx)
	if err != nil {
		return fmt.Errorf("session: resolve identity: %w", err)
	}

	o.state = StateSubmitting
	result, err := o.processor.Process(ctx, blur.ProcessRequest{
		Filename: o.original.Name,
		MIME:     o.original.MIME,
		Data:     o.original.Data,
		UserID:   userID,
	})
	if err != nil {
		o.clear()
		if errors.Is(err, domain.ErrEntitlementRequired) {
			o.logger.Debug().Err(err).Msg("session: backend requires entitlement")
			o.events.UpgradeRequired("upgrade required to continue")
			return err
		}
		o.logger.Warn().Err(err).Msg("session: processing failed")
		o.events.Failed("failed to process image, please try again")
		return err
	}

	o.result = result
	if !unlocked {
		// Usage is charged only on confirmed success, and before the
		// success event is surfaced.
		if err := o.ent.RecordUsage(ctx); err != nil {
			o.logger.Error().Err(err).Msg("session: record usage")
		}
	}
	o.state = StateCompleted
	o.events.ResultReady(result)
	return nil
}

// Reset clears the session and returns to idle.
func (o *Orchestrator) Reset() {
	o.clear()
}

func (o *Orchestrator) clear() {
	o.original = nil
	o.result = nil
	o.state = StateIdle
}

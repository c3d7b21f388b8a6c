package checkout

import (
	"context"
	"errors"
	"fmt"

	"blurclient/internal/domain"
	"blurclient/internal/entitlement"
	"blurclient/internal/identity"
	"blurclient/internal/infra"
)

// SessionCreator requests checkout sessions from the payment backend.
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, plan domain.Plan, userID string) (string, error)
}

// StatusQuerier looks up remote subscription state.
type StatusQuerier interface {
	SubscriptionStatus(ctx context.Context, userID string) (bool, error)
}

// Initiator maps a selected plan to a remote checkout session.
type Initiator struct {
	api    SessionCreator
	ident  *identity.Store
	logger *infra.Logger
}

func NewInitiator(api SessionCreator, ident *identity.Store, logger *infra.Logger) *Initiator {
	if logger == nil {
		l := infra.DiscardLogger()
		logger = &l
	}
	return &Initiator{api: api, ident: ident, logger: logger}
}

// Start begins checkout for the given plan. The free plan is a no-op and
// returns an empty URL. Paid plans require an already-resolved identity and
// yield the provider URL the caller should send the browser to; on any
// failure no redirect happens.
func (i *Initiator) Start(ctx context.Context, plan domain.Plan) (string, error) {
	if !plan.IsPaid() {
		return "", nil
	}
	userID, err := i.ident.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("checkout: read identity: %w", err)
	}
	if userID == "" {
		return "", domain.ErrMissingIdentity
	}
	url, err := i.api.CreateCheckoutSession(ctx, plan, userID)
	if err != nil {
		return "", err
	}
	i.logger.Info().Str("plan", string(plan)).Msg("checkout session created")
	return url, nil
}

// Reconciler aligns local entitlement state with the remote subscription
// record after the user returns from checkout.
type Reconciler struct {
	api    StatusQuerier
	ent    *entitlement.Store
	logger *infra.Logger

	// TrustRedirectOnQueryFailure unlocks optimistically when the status
	// query itself fails: having come back from the checkout redirect is
	// treated as sufficient evidence of purchase intent. Deliberate,
	// toggleable policy.
	TrustRedirectOnQueryFailure bool
}

func NewReconciler(api StatusQuerier, ent *entitlement.Store, trustRedirect bool, logger *infra.Logger) *Reconciler {
	if logger == nil {
		l := infra.DiscardLogger()
		logger = &l
	}
	return &Reconciler{api: api, ent: ent, logger: logger, TrustRedirectOnQueryFailure: trustRedirect}
}

// Reconcile queries the backend for the identity's subscription state and
// updates the entitlement store. It reports the resulting unlocked state and
// never leaves the outcome ambiguous.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, domain.ErrMissingIdentity
	}
	active, err := r.api.SubscriptionStatus(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrMissingIdentity) {
			return false, err
		}
		if r.TrustRedirectOnQueryFailure {
			r.logger.Warn().Err(err).Msg("status query failed, trusting the checkout redirect")
			if err := r.ent.SetUnlocked(ctx, true); err != nil {
				return false, fmt.Errorf("checkout: persist unlock: %w", err)
			}
			return true, nil
		}
		return false, err
	}
	if active {
		if err := r.ent.SetUnlocked(ctx, true); err != nil {
			return false, fmt.Errorf("checkout: persist unlock: %w", err)
		}
		return true, nil
	}
	return false, nil
}

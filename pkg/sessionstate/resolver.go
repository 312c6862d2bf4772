package sessionstate

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/pkg/logger"
)

// Keys read from the device-local store.
const (
	KeyGuestMode    = "is_guest_mode"
	KeyGuestUserID  = "guest_user_id"
	KeyBackendEmail = "backend_email"
	KeyBackendToken = "backend_token"
)

// LocalStore is the device key-value store.
type LocalStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// TokenChecker reports whether the backend accepts the stored token.
type TokenChecker interface {
	IsAuthenticated(ctx context.Context) bool
}

// EmailFetcher looks up the email of the current backend session.
type EmailFetcher interface {
	CurrentUserEmail(ctx context.Context) (string, error)
}

// LegacyUser is the account shape returned by the legacy auth provider.
type LegacyUser struct {
	ID    string
	Email string
}

// LegacyProvider returns the legacy provider's current user, or nil.
type LegacyProvider interface {
	CurrentUser(ctx context.Context) (*LegacyUser, error)
}

// Observer records which step settled a resolution.
type Observer interface {
	ObserveResolution(step string, mode string)
}

// Resolution is the outcome of one resolution pass.
type Resolution struct {
	Step             string
	Mode             Mode
	IdentityLabel    string
	GuestID          uuid.UUID
	GuestIDGenerated bool
	// Refine requests a background email lookup for an authenticated session.
	Refine bool
}

// ResolverParams bundles the collaborators used during resolution. Any of them
// may be nil, which counts as a signal that is never present.
type ResolverParams struct {
	Local    LocalStore
	Tokens   TokenChecker
	Emails   EmailFetcher
	Legacy   LegacyProvider
	Logger   *logger.Logger
	Observer Observer
	NewID    func() uuid.UUID
}

// Resolver picks the session mode at startup from the persisted signals.
type Resolver struct {
	local    LocalStore
	tokens   TokenChecker
	emails   EmailFetcher
	legacy   LegacyProvider
	logg     *logger.Logger
	observer Observer
	newID    func() uuid.UUID
}

// NewResolver constructs a Resolver.
func NewResolver(params ResolverParams) *Resolver {
	newID := params.NewID
	if newID == nil {
		newID = uuid.New
	}
	return &Resolver{
		local:    params.Local,
		tokens:   params.Tokens,
		emails:   params.Emails,
		legacy:   params.Legacy,
		logg:     params.Logger,
		observer: params.Observer,
		newID:    newID,
	}
}

// Resolve evaluates the steps in order, applies the first match to state and
// starts at most one background email refinement. It always settles on Guest,
// Authenticated or LoggedOut.
func (r *Resolver) Resolve(ctx context.Context, state *State) (Resolution, *Refinement) {
	p := &pass{}
	res := Resolution{Step: StepLoggedOut, Mode: ModeLoggedOut}
	for _, step := range r.Steps() {
		if step.Predicate(ctx, p) {
			res = step.Transition(p)
			res.Step = step.Name
			break
		}
	}

	if res.Mode == ModeGuest && res.GuestIDGenerated {
		r.persistGuestID(ctx, res.GuestID)
	}

	gen := state.apply(res)
	if r.observer != nil {
		r.observer.ObserveResolution(res.Step, res.Mode.String())
	}
	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"step": res.Step,
			"mode": res.Mode.String(),
		})
		r.logg.Info(logCtx, "session.resolved")
	}

	if !res.Refine || r.emails == nil {
		return res, doneRefinement()
	}
	return res, r.startRefinement(ctx, state, gen)
}

func (r *Resolver) persistGuestID(ctx context.Context, id uuid.UUID) {
	if r.local == nil {
		return
	}
	if err := r.local.Set(ctx, KeyGuestUserID, id.String()); err != nil {
		r.warn(ctx, "session.guest_id_persist_failed", err)
	}
}

func (r *Resolver) startRefinement(ctx context.Context, state *State, gen uint64) *Refinement {
	ref := &Refinement{done: make(chan struct{})}
	go func() {
		defer close(ref.done)
		email, err := r.emails.CurrentUserEmail(ctx)
		if err != nil {
			r.warn(ctx, "session.email_refine_failed", err)
			return
		}
		email = strings.TrimSpace(email)
		if email == "" {
			return
		}
		ref.applied = state.refineLabel(gen, email)
	}()
	return ref
}

func (r *Resolver) warn(ctx context.Context, msg string, err error) {
	if r.logg == nil {
		return
	}
	r.logg.Warn(r.logg.WithError(ctx, err), msg)
}

// Refinement is a handle on the background email lookup.
type Refinement struct {
	done    chan struct{}
	applied bool
}

func doneRefinement() *Refinement {
	ref := &Refinement{done: make(chan struct{})}
	close(ref.done)
	return ref
}

// Done is closed once the lookup has finished, successfully or not.
func (r *Refinement) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the lookup finishes or ctx ends. It reports whether the
// refined email was written to the session.
func (r *Refinement) Wait(ctx context.Context) bool {
	select {
	case <-r.done:
		return r.applied
	case <-ctx.Done():
		return false
	}
}

package sessionstate

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Step names, in precedence order.
const (
	StepLocalGuest   = "local_guest"
	StepBackendToken = "backend_token"
	StepCachedCreds  = "cached_credentials"
	StepLegacy       = "legacy_provider"
	StepLoggedOut    = "logged_out"
)

// Step is one (predicate, transition) pair. Predicates may record what they
// read in the pass so the transition does not query collaborators again.
type Step struct {
	Name       string
	Predicate  func(ctx context.Context, p *pass) bool
	Transition func(p *pass) Resolution
}

// pass holds values read during a single resolution.
type pass struct {
	guestRaw    string
	cachedEmail string
	legacyUser  *LegacyUser
}

// Steps returns the precedence chain. The first matching predicate wins.
func (r *Resolver) Steps() []Step {
	return []Step{
		{Name: StepLocalGuest, Predicate: r.hasLocalGuest, Transition: r.toLocalGuest},
		{Name: StepBackendToken, Predicate: r.hasActiveToken, Transition: r.toBackendAuthenticated},
		{Name: StepCachedCreds, Predicate: r.hasCachedCredentials, Transition: r.toCachedAuthenticated},
		{Name: StepLegacy, Predicate: r.hasLegacyUser, Transition: r.toLegacy},
		{Name: StepLoggedOut, Predicate: always, Transition: toLoggedOut},
	}
}

func (r *Resolver) hasLocalGuest(ctx context.Context, p *pass) bool {
	flag := r.read(ctx, KeyGuestMode)
	if ok, err := strconv.ParseBool(flag); err != nil || !ok {
		return false
	}
	p.guestRaw = r.read(ctx, KeyGuestUserID)
	return true
}

func (r *Resolver) toLocalGuest(p *pass) Resolution {
	id, generated := r.guestID(p.guestRaw)
	return Resolution{
		Mode:             ModeGuest,
		IdentityLabel:    GuestLabel,
		GuestID:          id,
		GuestIDGenerated: generated,
	}
}

func (r *Resolver) hasActiveToken(ctx context.Context, p *pass) bool {
	if r.tokens == nil || !r.tokens.IsAuthenticated(ctx) {
		return false
	}
	p.cachedEmail = strings.TrimSpace(r.read(ctx, KeyBackendEmail))
	return true
}

func (r *Resolver) toBackendAuthenticated(p *pass) Resolution {
	return Resolution{
		Mode:          ModeAuthenticated,
		IdentityLabel: labelOrPlaceholder(p.cachedEmail),
		Refine:        true,
	}
}

func (r *Resolver) hasCachedCredentials(ctx context.Context, p *pass) bool {
	email := strings.TrimSpace(r.read(ctx, KeyBackendEmail))
	token := strings.TrimSpace(r.read(ctx, KeyBackendToken))
	if email == "" || token == "" {
		return false
	}
	p.cachedEmail = email
	return true
}

func (r *Resolver) toCachedAuthenticated(p *pass) Resolution {
	return Resolution{
		Mode:          ModeAuthenticated,
		IdentityLabel: labelOrPlaceholder(p.cachedEmail),
		Refine:        true,
	}
}

func (r *Resolver) hasLegacyUser(ctx context.Context, p *pass) bool {
	if r.legacy == nil {
		return false
	}
	user, err := r.legacy.CurrentUser(ctx)
	if err != nil {
		r.warn(ctx, "session.legacy_lookup_failed", err)
		return false
	}
	if user == nil {
		return false
	}
	p.legacyUser = user
	return true
}

// toLegacy keeps the legacy rule that any email containing "guest" is a guest
// account. Do not reuse this check elsewhere.
func (r *Resolver) toLegacy(p *pass) Resolution {
	email := strings.TrimSpace(p.legacyUser.Email)
	if strings.Contains(email, "guest") {
		id, generated := r.guestID(p.legacyUser.ID)
		return Resolution{
			Mode:             ModeGuest,
			IdentityLabel:    GuestLabel,
			GuestID:          id,
			GuestIDGenerated: generated,
		}
	}
	return Resolution{
		Mode:          ModeAuthenticated,
		IdentityLabel: labelOrPlaceholder(email),
		Refine:        true,
	}
}

func always(context.Context, *pass) bool {
	return true
}

func toLoggedOut(*pass) Resolution {
	return Resolution{Mode: ModeLoggedOut}
}

func (r *Resolver) read(ctx context.Context, key string) string {
	if r.local == nil {
		return ""
	}
	value, err := r.local.Get(ctx, key)
	if err != nil {
		return ""
	}
	return value
}

func (r *Resolver) guestID(raw string) (uuid.UUID, bool) {
	if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil && id != uuid.Nil {
		return id, false
	}
	return r.newID(), true
}

func labelOrPlaceholder(email string) string {
	if email = strings.TrimSpace(email); email != "" {
		return email
	}
	return PlaceholderLabel
}

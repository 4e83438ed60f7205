package auth

import (
	"sync"
	"time"

	"github.com/lucasberan/keygate/pkg/crypto"
	appErrors "github.com/lucasberan/keygate/pkg/errors"
)

// DefaultStepUpWindow matches how long a password confirmation stays fresh
// before sensitive operations demand a new one.
const DefaultStepUpWindow = 3 * time.Hour

const stepUpTokenBytes = 32

type stepUpGrant struct {
	userID      string
	confirmedAt time.Time
}

// StepUpGate mints and checks the short-lived capability earned by
// re-entering the account password. Grants live only in memory; a restart
// simply forces users to confirm again.
type StepUpGate struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	grants map[string]stepUpGrant
}

// NewStepUpGate builds a gate with the given freshness window.
func NewStepUpGate(window time.Duration, clock func() time.Time) *StepUpGate {
	if window <= 0 {
		window = DefaultStepUpWindow
	}
	if clock == nil {
		clock = time.Now
	}

	return &StepUpGate{
		window: window,
		now:    clock,
		grants: make(map[string]stepUpGrant),
	}
}

// Confirm records a fresh password confirmation for the user and returns the
// opaque token proving it.
func (g *StepUpGate) Confirm(userID string) (string, error) {
	token, err := crypto.GenerateToken(stepUpTokenBytes)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.grants[token] = stepUpGrant{userID: userID, confirmedAt: g.now()}
	g.mu.Unlock()

	return token, nil
}

// Authorize checks that the token belongs to the user and is still inside the
// freshness window. Anything else reports that confirmation is required.
func (g *StepUpGate) Authorize(token, userID string) error {
	if token == "" || userID == "" {
		return appErrors.ErrStepUpRequired
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	grant, ok := g.grants[token]
	if !ok || grant.userID != userID {
		return appErrors.ErrStepUpRequired
	}
	if g.now().Sub(grant.confirmedAt) > g.window {
		delete(g.grants, token)
		return appErrors.ErrStepUpRequired
	}

	return nil
}

// PurgeExpired drops grants past the freshness window and reports how many
// were removed.
func (g *StepUpGate) PurgeExpired() int {
	cutoff := g.now().Add(-g.window)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for token, grant := range g.grants {
		if grant.confirmedAt.Before(cutoff) {
			delete(g.grants, token)
			removed++
		}
	}
	return removed
}

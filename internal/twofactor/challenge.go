package twofactor

import (
	"errors"
	"sync"
	"time"

	"github.com/lucasberan/keygate/pkg/crypto"
	appErrors "github.com/lucasberan/keygate/pkg/errors"
)

// DefaultChallengeTTL bounds how long a pending login may sit between the
// password step and the two-factor step.
const DefaultChallengeTTL = 10 * time.Minute

const challengeTokenBytes = 32

// Challenge is the ephemeral state carried between primary-credential success
// and two-factor verification. It lives only in memory for the duration of
// the login attempt.
type Challenge struct {
	UserID    string
	Remember  bool
	CreatedAt time.Time
}

// Outcome reports a passed challenge back to the login flow so it can hand
// off to the token issuer.
type Outcome struct {
	UserID           string
	Remember         bool
	UsedRecoveryCode bool
}

// Coordinator owns the pending-challenge registry and verifies submitted
// credentials against the two-factor service. Challenges are single use on
// success and stay valid for further attempts on failure until they expire.
type Coordinator struct {
	svc *Service
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]Challenge
}

// NewCoordinator builds a Coordinator around the two-factor service.
func NewCoordinator(svc *Service, ttl time.Duration, clock func() time.Time) (*Coordinator, error) {
	if svc == nil {
		return nil, errors.New("twofactor: service is required")
	}
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	if clock == nil {
		clock = time.Now
	}

	return &Coordinator{
		svc:     svc,
		ttl:     ttl,
		now:     clock,
		pending: make(map[string]Challenge),
	}, nil
}

// Begin registers a pending challenge for an account whose primary
// credentials just succeeded and returns its opaque token.
func (c *Coordinator) Begin(userID string, remember bool) (string, error) {
	token, err := crypto.GenerateToken(challengeTokenBytes)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.pending[token] = Challenge{
		UserID:    userID,
		Remember:  remember,
		CreatedAt: c.now(),
	}
	c.mu.Unlock()

	return token, nil
}

// Verify checks the submitted one-time code or recovery code against the
// challenge's account. Exactly one credential kind must be supplied.
func (c *Coordinator) Verify(token, code, recoveryCode string) (*Outcome, error) {
	if (code == "") == (recoveryCode == "") {
		return nil, appErrors.NewValidation("code", "Provide either a one-time code or a recovery code")
	}

	challenge, ok := c.lookup(token)
	if !ok {
		return nil, appErrors.ErrChallengeInvalid
	}

	state, err := c.svc.State(challenge.UserID)
	if err != nil {
		return nil, err
	}
	if state != StateConfirmed {
		// The account changed underneath the pending login; the challenge can
		// never pass, and the caller learns nothing beyond "invalid".
		c.discard(token)
		return nil, appErrors.ErrChallengeInvalid
	}

	outcome := &Outcome{UserID: challenge.UserID, Remember: challenge.Remember}

	if code != "" {
		ok, err := c.svc.VerifyCode(challenge.UserID, code)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErrors.NewValidation("code", msgInvalidCode)
		}
	} else {
		ok, err := c.svc.ConsumeRecoveryCode(challenge.UserID, recoveryCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, appErrors.NewValidation("recovery_code", msgInvalidRecoveryCode)
		}
		outcome.UsedRecoveryCode = true
	}

	// Single use: the first successful verification takes the challenge.
	if !c.discard(token) {
		return nil, appErrors.ErrChallengeInvalid
	}

	return outcome, nil
}

// PurgeExpired drops challenges past their TTL and reports how many were removed.
func (c *Coordinator) PurgeExpired() int {
	cutoff := c.now().Add(-c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for token, challenge := range c.pending {
		if challenge.CreatedAt.Before(cutoff) {
			delete(c.pending, token)
			removed++
		}
	}
	return removed
}

func (c *Coordinator) lookup(token string) (Challenge, bool) {
	if token == "" {
		return Challenge{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	challenge, ok := c.pending[token]
	if !ok {
		return Challenge{}, false
	}
	if c.now().Sub(challenge.CreatedAt) > c.ttl {
		delete(c.pending, token)
		return Challenge{}, false
	}
	return challenge, true
}

func (c *Coordinator) discard(token string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[token]; !ok {
		return false
	}
	delete(c.pending, token)
	return true
}

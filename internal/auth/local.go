package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/lucasberan/keygate/internal/models"
	"github.com/lucasberan/keygate/pkg/crypto"
	appErrors "github.com/lucasberan/keygate/pkg/errors"
)

// LocalConfig defines tunable behaviour for password authentication.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// Credentials carries a login attempt's inputs plus request metadata recorded
// on success.
type Credentials struct {
	Identifier string
	Password   string
	IPAddress  string
}

// RegisterInput captures the details required to create a local account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// PasswordAuthenticator implements username/password authentication with
// account lockout controls.
type PasswordAuthenticator struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewPasswordAuthenticator builds an authenticator with sane defaults.
func NewPasswordAuthenticator(db *gorm.DB, cfg LocalConfig) (*PasswordAuthenticator, error) {
	if db == nil {
		return nil, errors.New("auth: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &PasswordAuthenticator{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated
// user when successful. Failures are deliberately indistinguishable between
// unknown identifiers and wrong passwords.
func (a *PasswordAuthenticator) Authenticate(input Credentials) (*models.User, error) {
	identity := strings.TrimSpace(input.Identifier)
	if identity == "" || input.Password == "" {
		return nil, appErrors.ErrInvalidCredentials
	}

	var user models.User
	err := a.db.Where("LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)", identity, identity).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: query user: %w", err)
	}

	now := a.clock()

	if !user.IsActive {
		return nil, appErrors.ErrInvalidCredentials
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, appErrors.ErrAccountLocked
	}

	// Unlock the account if the lockout duration has elapsed.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		user.LockedUntil = nil
		user.FailedAttempts = 0
		if err := a.db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("auth: reset lock state: %w", err)
		}
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		return nil, a.handleFailedAttempt(&user, now)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now
	user.LastLoginIP = strings.TrimSpace(input.IPAddress)

	if err := a.db.Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   user.LastLoginIP,
	}).Error; err != nil {
		return nil, fmt.Errorf("auth: update user: %w", err)
	}

	return &user, nil
}

func (a *PasswordAuthenticator) handleFailedAttempt(user *models.User, now time.Time) error {
	user.FailedAttempts++

	updates := map[string]any{
		"failed_attempts": user.FailedAttempts,
	}

	if user.FailedAttempts >= a.threshold {
		lockUntil := now.Add(a.duration)
		user.LockedUntil = &lockUntil
		updates["locked_until"] = lockUntil
	}

	if err := a.db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth: update failed attempts: %w", err)
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return appErrors.ErrAccountLocked
	}

	return appErrors.ErrInvalidCredentials
}

// VerifyPassword re-checks the password of an already authenticated user. It
// never touches lockout counters, so a fat-fingered confirmation cannot lock
// an active session out of its own account.
func (a *PasswordAuthenticator) VerifyPassword(userID, password string) error {
	if strings.TrimSpace(userID) == "" {
		return appErrors.ErrUnauthorized
	}

	var user models.User
	if err := a.db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrUnauthorized
		}
		return fmt.Errorf("auth: find user: %w", err)
	}

	if password == "" || !crypto.VerifyPassword(user.Password, password) {
		return appErrors.NewValidation("password", "The provided password was incorrect")
	}

	return nil
}

// UserByID loads a user by primary key.
func (a *PasswordAuthenticator) UserByID(userID string) (*models.User, error) {
	var user models.User
	if err := a.db.Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	return &user, nil
}

// Register creates a new local user with a hashed password. Taken usernames
// and emails surface as field-scoped validation failures.
func (a *PasswordAuthenticator) Register(input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, errors.New("auth: username, email and password are required")
	}

	if err := a.ensureIdentityAvailable("username", username); err != nil {
		return nil, err
	}
	if err := a.ensureIdentityAvailable("email", email); err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashed,
		IsActive: true,
	}

	if err := a.db.Create(user).Error; err != nil {
		// A concurrent registration can still win the unique index between the
		// availability check and the insert.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, appErrors.NewValidation("email", "The email or username has already been taken")
		}
		return nil, fmt.Errorf("auth: create user: %w", err)
	}

	return user, nil
}

func (a *PasswordAuthenticator) ensureIdentityAvailable(column, value string) error {
	var count int64
	if err := a.db.Model(&models.User{}).
		Where(fmt.Sprintf("LOWER(%s) = LOWER(?)", column), value).
		Count(&count).Error; err != nil {
		return fmt.Errorf("auth: check %s availability: %w", column, err)
	}
	if count > 0 {
		return appErrors.NewValidation(column, fmt.Sprintf("The %s has already been taken", column))
	}
	return nil
}

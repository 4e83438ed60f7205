package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lucasberan/keygate/internal/database"
	"github.com/lucasberan/keygate/internal/models"
	"github.com/lucasberan/keygate/pkg/crypto"
	appErrors "github.com/lucasberan/keygate/pkg/errors"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createUser(t *testing.T, db *gorm.DB, user models.User, password string) models.User {
	t.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)
	user.Password = hashed
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{Clock: func() time.Time { return current }})
	require.NoError(t, err)

	user := createUser(t, db, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		IsActive:       true,
		FailedAttempts: 3,
	}, "password123")

	result, err := authn.Authenticate(Credentials{
		Identifier: "alice",
		Password:   "password123",
		IPAddress:  "127.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.ID)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)

	require.Equal(t, 0, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
	require.NotNil(t, updated.LastLoginAt)
	require.True(t, updated.LastLoginAt.Equal(current))
	require.Equal(t, "127.0.0.1", updated.LastLoginIP)
}

func TestAuthenticateByEmailIsCaseInsensitive(t *testing.T) {
	db := setupDB(t)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{})
	require.NoError(t, err)

	createUser(t, db, models.User{
		Username: "alice",
		Email:    "alice@example.com",
		IsActive: true,
	}, "password123")

	_, err = authn.Authenticate(Credentials{Identifier: "Alice@Example.COM", Password: "password123"})
	require.NoError(t, err)
}

func TestAuthenticateInvalidPasswordLocksAccount(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            func() time.Time { return current },
	})
	require.NoError(t, err)

	user := createUser(t, db, models.User{
		Username:       "bob",
		Email:          "bob@example.com",
		IsActive:       true,
		FailedAttempts: 2,
	}, "correct")

	// The third failure crosses the threshold and locks the account.
	_, err = authn.Authenticate(Credentials{Identifier: "bob", Password: "wrong"})
	require.ErrorIs(t, err, appErrors.ErrAccountLocked)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 3, updated.FailedAttempts)
	require.NotNil(t, updated.LockedUntil)
	require.True(t, updated.LockedUntil.Equal(current.Add(10*time.Minute)))

	// Even the correct password bounces while the lock holds.
	_, err = authn.Authenticate(Credentials{Identifier: "bob", Password: "correct"})
	require.ErrorIs(t, err, appErrors.ErrAccountLocked)
}

func TestAuthenticateUnlocksAfterDuration(t *testing.T) {
	db := setupDB(t)
	current := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            func() time.Time { return current },
	})
	require.NoError(t, err)

	lockedUntil := current.Add(-time.Minute)
	user := createUser(t, db, models.User{
		Username:       "carol",
		Email:          "carol@example.com",
		IsActive:       true,
		FailedAttempts: 3,
		LockedUntil:    &lockedUntil,
	}, "correct")

	result, err := authn.Authenticate(Credentials{Identifier: "carol", Password: "correct"})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.ID)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 0, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
}

func TestAuthenticateUnknownUserAndInactiveUser(t *testing.T) {
	db := setupDB(t)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{})
	require.NoError(t, err)

	_, err = authn.Authenticate(Credentials{Identifier: "ghost", Password: "whatever"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	createUser(t, db, models.User{
		Username: "dora",
		Email:    "dora@example.com",
		IsActive: false,
	}, "password123")

	// Deactivated accounts fail identically to bad credentials.
	_, err = authn.Authenticate(Credentials{Identifier: "dora", Password: "password123"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestAuthenticateRejectsEmptyInputs(t *testing.T) {
	authn, err := NewPasswordAuthenticator(setupDB(t), LocalConfig{})
	require.NoError(t, err)

	_, err = authn.Authenticate(Credentials{Identifier: "", Password: "x"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = authn.Authenticate(Credentials{Identifier: "alice", Password: ""})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
}

func TestVerifyPasswordDoesNotTouchCounters(t *testing.T) {
	db := setupDB(t)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{LockoutThreshold: 3})
	require.NoError(t, err)

	user := createUser(t, db, models.User{
		Username:       "erin",
		Email:          "erin@example.com",
		IsActive:       true,
		FailedAttempts: 2,
	}, "password123")

	err = authn.VerifyPassword(user.ID, "wrong")
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.Fields["password"])

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 2, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)

	require.NoError(t, authn.VerifyPassword(user.ID, "password123"))
}

func TestVerifyPasswordUnknownUser(t *testing.T) {
	authn, err := NewPasswordAuthenticator(setupDB(t), LocalConfig{})
	require.NoError(t, err)

	err = authn.VerifyPassword("no-such-id", "password123")
	require.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestRegisterHashesPassword(t *testing.T) {
	db := setupDB(t)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{})
	require.NoError(t, err)

	user, err := authn.Register(RegisterInput{
		Username: "frank",
		Email:    "Frank@Example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.Equal(t, "frank@example.com", user.Email)
	require.NotEqual(t, "password123", user.Password)
	require.True(t, crypto.VerifyPassword(user.Password, "password123"))
}

func TestRegisterRejectsTakenUsernameAndEmail(t *testing.T) {
	db := setupDB(t)

	authn, err := NewPasswordAuthenticator(db, LocalConfig{})
	require.NoError(t, err)

	_, err = authn.Register(RegisterInput{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "password123",
	})
	require.NoError(t, err)

	_, err = authn.Register(RegisterInput{
		Username: "GRACE",
		Email:    "other@example.com",
		Password: "password123",
	})
	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.Fields["username"])

	_, err = authn.Register(RegisterInput{
		Username: "someone",
		Email:    "Grace@Example.com",
		Password: "password123",
	})
	require.ErrorAs(t, err, &appErr)
	require.NotEmpty(t, appErr.Fields["email"])
}

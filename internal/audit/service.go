package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lucasberan/keygate/internal/models"
)

// Action and result values recorded by the authentication flows.
const (
	ActionRegister          = "auth.register"
	ActionLogin             = "auth.login"
	ActionLogout            = "auth.logout"
	ActionChallenge         = "auth.two_factor_challenge"
	ActionConfirmPassword   = "auth.confirm_password"
	ActionTwoFactorEnable   = "two_factor.enable"
	ActionTwoFactorConfirm  = "two_factor.confirm"
	ActionTwoFactorDisable  = "two_factor.disable"
	ActionRecoveryRegen     = "two_factor.regenerate_recovery_codes"
	ActionRecoveryCodeLogin = "two_factor.recovery_code_used"

	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Entry captures a single audit event to persist.
type Entry struct {
	UserID    string
	Action    string
	Result    string
	IPAddress string
	UserAgent string
	Metadata  map[string]any
}

// Filters narrows audit queries.
type Filters struct {
	UserID string
	Action string
	Result string
	Since  *time.Time
	Until  *time.Time
}

// ListOptions controls pagination and filtering for audit queries.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  Filters
}

// Service persists and retrieves audit log entries.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service using the provided database handle.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("audit: db is required")
	}
	return &Service{db: db}, nil
}

// Record stores an audit entry, marshalling metadata into JSON form.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit: result is required")
	}

	log := models.AuditLog{
		Action:    strings.TrimSpace(entry.Action),
		Result:    strings.TrimSpace(entry.Result),
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
	}

	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
		log.Metadata = datatypes.JSON(encoded)
	}

	if id := strings.TrimSpace(entry.UserID); id != "" {
		log.UserID = &id
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

// List returns paginated audit logs ordered by creation time descending.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]models.AuditLog, int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := applyFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit: count logs: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit: list logs: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention
// window in days and reports how many rows were deleted.
func (s *Service) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if retentionDays <= 0 {
		return 0, errors.New("audit: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit: cleanup logs: %w", res.Error)
	}

	return res.RowsAffected, nil
}

func applyFilters(query *gorm.DB, filters Filters) *gorm.DB {
	if id := strings.TrimSpace(filters.UserID); id != "" {
		query = query.Where("user_id = ?", id)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		query = query.Where("action = ?", action)
	}
	if result := strings.TrimSpace(filters.Result); result != "" {
		query = query.Where("result = ?", result)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

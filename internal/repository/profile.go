package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrProfileNotFound is returned when a user has neither a profile nor settings
var ErrProfileNotFound = errors.New("profile not found")

// ProfileRecord is the stored profile and settings of one user
type ProfileRecord struct {
	UserID    string
	Email     string
	Profile   model.UserProfile
	Settings  model.UserSettings
	UpdatedAt time.Time
}

// ProfileRepository manages patient profiles and user settings. A user may
// own several patient rows; the most recently updated one is authoritative.
type ProfileRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *pgxpool.Pool, logger *zap.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// GetProfile returns the newest profile and the settings of a user
func (r *ProfileRepository) GetProfile(ctx context.Context, userID string) (*ProfileRecord, error) {
	query := `
		SELECT p.profile, p.updated_at, s.settings, s.email, s.updated_at
		FROM (SELECT $1::text AS user_id) u
		LEFT JOIN LATERAL (
			SELECT profile, updated_at
			FROM patients
			WHERE user_id = u.user_id
			ORDER BY updated_at DESC
			LIMIT 1
		) p ON TRUE
		LEFT JOIN user_settings s ON s.user_id = u.user_id
	`

	var (
		profileJSON, settingsJSON []byte
		profileAt, settingsAt     *time.Time
		email                     *string
	)
	err := r.db.QueryRow(ctx, query, userID).Scan(&profileJSON, &profileAt, &settingsJSON, &email, &settingsAt)
	if err != nil {
		r.logger.Error("failed to get profile", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	if profileJSON == nil && settingsJSON == nil {
		return nil, ErrProfileNotFound
	}

	record := &ProfileRecord{
		UserID:  userID,
		Profile: model.DefaultUserProfile(),
	}
	if profileJSON != nil {
		if err := json.Unmarshal(profileJSON, &record.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		record.UpdatedAt = *profileAt
	}
	if settingsJSON != nil {
		if err := json.Unmarshal(settingsJSON, &record.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings: %w", err)
		}
		if settingsAt != nil && settingsAt.After(record.UpdatedAt) {
			record.UpdatedAt = *settingsAt
		}
	}
	if email != nil {
		record.Email = *email
	}

	return record, nil
}

// SaveProfile updates the newest patient row of the user, or creates one,
// and upserts the settings, all in one transaction.
func (r *ProfileRepository) SaveProfile(ctx context.Context, rec ProfileRecord) error {
	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	settingsJSON, err := json.Marshal(rec.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var patientID uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM patients
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
		FOR UPDATE
	`, rec.UserID).Scan(&patientID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO patients (id, user_id, created_by, profile, created_at, updated_at)
			VALUES ($1, $2, $2, $3, NOW(), NOW())
		`, uuid.New(), rec.UserID, profileJSON)
		if err != nil {
			r.logger.Error("failed to create profile", zap.Error(err), zap.String("user_id", rec.UserID))
			return fmt.Errorf("failed to create profile: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to find profile: %w", err)
	default:
		_, err = tx.Exec(ctx, `
			UPDATE patients SET profile = $1, updated_at = NOW()
			WHERE id = $2
		`, profileJSON, patientID)
		if err != nil {
			r.logger.Error("failed to update profile", zap.Error(err), zap.String("user_id", rec.UserID))
			return fmt.Errorf("failed to update profile: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_settings (user_id, email, settings, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET email = COALESCE(NULLIF(EXCLUDED.email, ''), user_settings.email),
			settings = EXCLUDED.settings,
			updated_at = NOW()
	`, rec.UserID, rec.Email, settingsJSON)
	if err != nil {
		r.logger.Error("failed to save settings", zap.Error(err), zap.String("user_id", rec.UserID))
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteProfile removes every patient row and the settings of a user
func (r *ProfileRepository) DeleteProfile(ctx context.Context, userID string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	patients, err := tx.Exec(ctx, "DELETE FROM patients WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete profiles: %w", err)
	}

	settings, err := tx.Exec(ctx, "DELETE FROM user_settings WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete settings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	deleted := patients.RowsAffected() + settings.RowsAffected()
	if deleted == 0 {
		return 0, ErrProfileNotFound
	}

	r.logger.Info("profile deleted",
		zap.String("user_id", userID),
		zap.Int64("patient_rows", patients.RowsAffected()),
	)

	return deleted, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docmate-health/docmate/internal/audit"
	"github.com/docmate-health/docmate/internal/repository"
	"github.com/docmate-health/docmate/pkg/model"
	"go.uber.org/zap"
)

// ErrInvalidUserID is returned for blank user identifiers
var ErrInvalidUserID = errors.New("user id is required")

// ProfileStore persists profiles and settings
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*repository.ProfileRecord, error)
	SaveProfile(ctx context.Context, rec repository.ProfileRecord) error
	DeleteProfile(ctx context.Context, userID string) (int64, error)
}

// Auditor records who touched a profile
type Auditor interface {
	Log(ctx context.Context, entry audit.Entry) error
}

// ProfileService manages the one profile/settings pair of each user
type ProfileService struct {
	store   ProfileStore
	auditor Auditor
	logger  *zap.Logger
}

// NewProfileService creates a new ProfileService
func NewProfileService(store ProfileStore, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		store:  store,
		logger: logger,
	}
}

// WithAuditor records every profile read, save and erase. Audit failures
// are logged and never fail the request.
func (s *ProfileService) WithAuditor(a Auditor) *ProfileService {
	s.auditor = a
	return s
}

// GetProfile returns the profile envelope of a user, or
// repository.ErrProfileNotFound
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*model.ProfileEnvelope, error) {
	env, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.audit(ctx, userID, audit.OperationRead, nil)
	return env, nil
}

func (s *ProfileService) load(ctx context.Context, userID string) (*model.ProfileEnvelope, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	rec, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	return toEnvelope(rec), nil
}

// SaveProfile stores the profile and settings and returns what was stored
func (s *ProfileService) SaveProfile(ctx context.Context, userID string, env model.ProfileEnvelope) (*model.ProfileEnvelope, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	profile := normalizeProfile(env.Profile)
	rec := repository.ProfileRecord{
		UserID:   userID,
		Email:    strings.TrimSpace(env.Email),
		Profile:  profile,
		Settings: env.Settings,
	}
	if err := s.store.SaveProfile(ctx, rec); err != nil {
		s.logger.Error("failed to save profile", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}

	s.logger.Info("profile saved",
		zap.String("user_id", userID),
		zap.Bool("complete", profile.Complete()),
	)
	s.audit(ctx, userID, audit.OperationUpdate, map[string]any{"complete": profile.Complete()})

	return s.load(ctx, userID)
}

// DeleteProfile erases every stored profile row and the settings of a user
func (s *ProfileService) DeleteProfile(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUserID
	}

	deleted, err := s.store.DeleteProfile(ctx, userID)
	if err != nil {
		return err
	}

	s.logger.Info("profile erased", zap.String("user_id", userID), zap.Int64("rows", deleted))
	s.audit(ctx, userID, audit.OperationDelete, map[string]any{"rows": deleted})
	return nil
}

func (s *ProfileService) audit(ctx context.Context, userID string, op audit.OperationType, data map[string]any) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Log(ctx, audit.Entry{
		UserID:         userID,
		OperationType:  op,
		ResourceType:   audit.ResourceProfile,
		ResourceID:     userID,
		AdditionalData: data,
	})
	if err != nil {
		s.logger.Warn("failed to record profile audit entry", zap.Error(err), zap.String("user_id", userID))
	}
}

func toEnvelope(rec *repository.ProfileRecord) *model.ProfileEnvelope {
	env := &model.ProfileEnvelope{
		Profile:  normalizeProfile(rec.Profile),
		Settings: rec.Settings,
		Email:    rec.Email,
	}
	env.Complete = env.Profile.Complete()
	if !rec.UpdatedAt.IsZero() {
		updated := rec.UpdatedAt.UTC()
		env.UpdatedAt = &updated
	}
	return env
}

// normalizeProfile trims text fields and drops blank list entries
func normalizeProfile(p model.UserProfile) model.UserProfile {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Age = strings.TrimSpace(p.Age)
	p.Gender = strings.TrimSpace(p.Gender)
	p.PastConditions = compact(p.PastConditions)
	p.Allergies = compact(p.Allergies)
	p.CurrentMedications = compact(p.CurrentMedications)
	return p
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

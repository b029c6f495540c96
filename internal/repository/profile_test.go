package repository

import (
	"context"
	"testing"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// setupTestDB creates a PostgreSQL testcontainer and returns the connection pool
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("docmate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return pool, cleanup
}

func sampleProfile(name string) model.UserProfile {
	p := model.DefaultUserProfile()
	p.FullName = name
	p.Age = "41"
	p.Gender = "Male"
	p.BloodType = "B+"
	p.Allergies = []string{"Penicillin"}
	p.EmergencyContactName = "Meera"
	p.EmergencyContactPhone = "+91 90000 00000"
	return p
}

func TestProfileRepository(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool, zap.NewNop())
	ctx := context.Background()

	t.Run("missing user", func(t *testing.T) {
		_, err := repo.GetProfile(ctx, "nobody")
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})

	t.Run("save then load", func(t *testing.T) {
		rec := ProfileRecord{
			UserID:   "user-1",
			Email:    "ravi@example.com",
			Profile:  sampleProfile("Ravi Kumar"),
			Settings: model.UserSettings{LocationSharingConsent: true},
		}
		require.NoError(t, repo.SaveProfile(ctx, rec))

		got, err := repo.GetProfile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, rec.Profile, got.Profile)
		assert.Equal(t, rec.Settings, got.Settings)
		assert.Equal(t, "ravi@example.com", got.Email)
		assert.False(t, got.UpdatedAt.IsZero())
	})

	t.Run("second save updates in place", func(t *testing.T) {
		rec := ProfileRecord{UserID: "user-1", Profile: sampleProfile("Ravi K."), Settings: model.UserSettings{AutoTriggerConsent: true}}
		require.NoError(t, repo.SaveProfile(ctx, rec))

		var count int
		require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM patients WHERE user_id = $1", "user-1").Scan(&count))
		assert.Equal(t, 1, count)

		got, err := repo.GetProfile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, "Ravi K.", got.Profile.FullName)
		assert.Equal(t, "ravi@example.com", got.Email, "empty email keeps the stored one")
		assert.True(t, got.Settings.AutoTriggerConsent)
	})

	t.Run("duplicates resolve to newest", func(t *testing.T) {
		older := `{"fullName":"Old Name"}`
		newer := `{"fullName":"New Name"}`
		_, err := pool.Exec(ctx, `INSERT INTO patients (id, user_id, profile, updated_at) VALUES ($1, 'dup', $2, NOW() - INTERVAL '2 days')`, uuid.New(), []byte(older))
		require.NoError(t, err)
		_, err = pool.Exec(ctx, `INSERT INTO patients (id, user_id, profile, updated_at) VALUES ($1, 'dup', $2, NOW() - INTERVAL '1 day')`, uuid.New(), []byte(newer))
		require.NoError(t, err)

		got, err := repo.GetProfile(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, "New Name", got.Profile.FullName)
		assert.Equal(t, model.UserSettings{}, got.Settings)
	})

	t.Run("delete removes all rows", func(t *testing.T) {
		deleted, err := repo.DeleteProfile(ctx, "dup")
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		_, err = repo.GetProfile(ctx, "dup")
		assert.ErrorIs(t, err, ErrProfileNotFound)

		_, err = repo.DeleteProfile(ctx, "dup")
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

// Property: after any sequence of saves a user has exactly one patient row
// and it holds the last saved profile.
func TestProperty_OneProfilePerUser(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewProfileRepository(pool, zap.NewNop())
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("last save wins with a single row", prop.ForAll(
		func(names []string) bool {
			if len(names) == 0 {
				return true
			}
			userID := "prop-" + uuid.NewString()
			for _, name := range names {
				if err := repo.SaveProfile(ctx, ProfileRecord{UserID: userID, Profile: sampleProfile(name)}); err != nil {
					t.Logf("save failed: %v", err)
					return false
				}
			}

			var count int
			if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM patients WHERE user_id = $1", userID).Scan(&count); err != nil {
				return false
			}
			if count != 1 {
				t.Logf("expected one row, got %d", count)
				return false
			}

			got, err := repo.GetProfile(ctx, userID)
			return err == nil && got.Profile.FullName == names[len(names)-1]
		},
		gen.SliceOfN(3, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

//go:build integration

package qualification

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"experthub/internal/qualification/models"
	id "experthub/pkg/domain"
	"experthub/pkg/platform/sentinel"
	"experthub/pkg/testutil/containers"
)

func TestPostgresQualificationStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t, "../../../../migrations")
	store := NewPostgres(pc.DB)
	ctx := context.Background()

	userID := id.UserID(uuid.New())
	offeringID := id.OfferingID(uuid.New())
	seedUserAndOffering(t, pc, userID, offeringID)

	passedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("create and read back", func(t *testing.T) {
		q, err := models.NewQualification(id.QualificationID(uuid.New()), userID, offeringID, passedAt, "reviewer-1", time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, store.CreateIfAbsent(ctx, q))

		found, err := store.FindByUserOffering(ctx, userID, offeringID)
		require.NoError(t, err)
		assert.Equal(t, q.ID, found.ID)
		assert.True(t, found.TrainingPassedAt.Equal(passedAt))
		assert.Equal(t, "reviewer-1", found.CreatedBy)
	})

	t.Run("unique index rejects a second record for the pair", func(t *testing.T) {
		dup, err := models.NewQualification(id.QualificationID(uuid.New()), userID, offeringID, passedAt, "reviewer-2", time.Now().UTC())
		require.NoError(t, err)

		err = store.CreateIfAbsent(ctx, dup)
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("list by user", func(t *testing.T) {
		list, err := store.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("delete frees the pair", func(t *testing.T) {
		existing, err := store.FindByUserOffering(ctx, userID, offeringID)
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, existing.ID))

		_, err = store.FindByUserOffering(ctx, userID, offeringID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		fresh, err := models.NewQualification(id.QualificationID(uuid.New()), userID, offeringID, passedAt, "reviewer-3", time.Now().UTC())
		require.NoError(t, err)
		assert.NoError(t, store.CreateIfAbsent(ctx, fresh))
	})

	t.Run("delete unknown id", func(t *testing.T) {
		err := store.Delete(ctx, id.QualificationID(uuid.New()))
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func seedUserAndOffering(t *testing.T, pc *containers.PostgresContainer, userID id.UserID, offeringID id.OfferingID) {
	t.Helper()

	now := time.Now().UTC()
	parentID := uuid.New()

	_, err := pc.DB.Exec(`
		INSERT INTO users (id, name, email, active, created_at, updated_at)
		VALUES ($1, 'Test Expert', $2, TRUE, $3, $3)`,
		userID.String(), uuid.NewString()+"@example.com", now)
	require.NoError(t, err)

	_, err = pc.DB.Exec(`
		INSERT INTO service_parents (id, name, active, created_at, updated_at)
		VALUES ($1, 'Inspections', TRUE, $2, $2)`,
		parentID, now)
	require.NoError(t, err)

	_, err = pc.DB.Exec(`
		INSERT INTO service_offerings (id, parent_id, version, name, active, released_at, created_at, updated_at)
		VALUES ($1, $2, '2025', 'Inspections 2025', TRUE, $3, $3, $3)`,
		offeringID.String(), parentID, now)
	require.NoError(t, err)
}

package repositories

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/modules/saas/models"
	"github.com/MuhamadAgungGumelar/wa-chatbot-billing-be/internal/shared/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// testDB opens TEST_DATABASE_URL with the saas migrations applied. Every
// test seeds its own organization so tests never share rows.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	migrateOnce.Do(func() {
		dir, err := filepath.Abs(filepath.Join("..", "..", "..", "..", "migrations", "saas"))
		if err != nil {
			migrateErr = err
			return
		}
		migrateErr = database.MigrateUp(url, dir)
	})
	require.NoError(t, migrateErr)

	db, err := database.OpenGORM(url, false)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedOrganization(t *testing.T, db *gorm.DB, status string) *models.Organization {
	t.Helper()
	org := &models.Organization{Name: "org-" + uuid.NewString()[:8], Status: status, PlanTier: "free"}
	require.NoError(t, db.Create(org).Error)
	return org
}

func seedBalance(t *testing.T, db *gorm.DB, orgID uuid.UUID, balance int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.CreditBalance{OrganizationID: orgID, Balance: balance}).Error)
}

func seedOutbound(t *testing.T, db *gorm.DB, orgID uuid.UUID) *models.Message {
	t.Helper()
	msg, created, err := NewMessageRepo(db).Upsert(context.Background(), &models.Message{
		OrganizationID: orgID,
		Direction:      models.DirectionOutbound,
		Counterparty:   "6281234567890@s.whatsapp.net",
		Content:        "reply",
		ExternalID:     "out:" + uuid.NewString(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return msg
}

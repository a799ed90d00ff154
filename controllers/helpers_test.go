package controller

import (
	"io"
	"log"
	"testing"
	"time"

	"leadpulse/models"
	"leadpulse/store"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	return store.New(db)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func seedLead(t *testing.T, s *store.Store, userID uint, email string) models.Lead {
	t.Helper()
	lead := models.Lead{
		UserID:    userID,
		Email:     email,
		FirstName: "Ada",
		Status:    models.LeadStatusNew,
	}
	require.NoError(t, s.DB().Create(&lead).Error)
	return lead
}

func seedTrackedEmail(t *testing.T, s *store.Store, leadID uint, token string) models.TrackedEmail {
	t.Helper()
	email := models.TrackedEmail{
		LeadID:        leadID,
		Subject:       "Still interested?",
		Body:          "<p>Hello</p>",
		SentAt:        time.Now().UTC(),
		TrackingToken: token,
	}
	require.NoError(t, s.DB().Create(&email).Error)
	return email
}

func seedSequence(t *testing.T, s *store.Store, userID uint) models.Sequence {
	t.Helper()
	sequence := models.Sequence{
		UserID:      userID,
		Name:        "Win-back",
		TriggerType: models.TriggerTimeBased,
	}
	require.NoError(t, s.DB().Create(&sequence).Error)
	return sequence
}

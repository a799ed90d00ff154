package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadpulse/models"
	"leadpulse/store"
	"leadpulse/utils"

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

type fakeSender struct {
	mu   sync.Mutex
	sent []utils.Email
	fail bool
}

func (f *fakeSender) Send(ctx context.Context, email utils.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, email)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func seedLead(t *testing.T, s *store.Store, userID uint, email string, lastEngagement *time.Time) models.Lead {
	t.Helper()
	lead := models.Lead{
		UserID:           userID,
		Email:            email,
		FirstName:        "Ada",
		Status:           models.LeadStatusContacted,
		LastEngagementAt: lastEngagement,
	}
	require.NoError(t, s.DB().Create(&lead).Error)
	return lead
}

func seedSequence(t *testing.T, s *store.Store, userID uint, stepCount int) models.Sequence {
	t.Helper()
	sequence := models.Sequence{
		UserID:      userID,
		Name:        "Win-back",
		TriggerType: models.TriggerTimeBased,
	}
	require.NoError(t, s.DB().Create(&sequence).Error)

	for i := 0; i < stepCount; i++ {
		delay := 0
		if i > 0 {
			delay = 3
		}
		step := models.SequenceStep{
			SequenceID: sequence.ID,
			StepNumber: i,
			DelayDays:  delay,
			Subject:    "Still interested, {{.FirstName}}?",
			Body:       `<p>Hi {{.FirstName}}, see <a href="https://example.com/pricing">pricing</a>.</p>`,
		}
		require.NoError(t, s.DB().Create(&step).Error)
	}
	return sequence
}

func seedWorkflow(t *testing.T, s *store.Store, userID, sequenceID uint, inactivityDays int) models.ReengagementWorkflow {
	t.Helper()
	workflow := models.ReengagementWorkflow{
		UserID:         userID,
		Name:           "Quarterly win-back",
		InactivityDays: inactivityDays,
		SequenceID:     sequenceID,
		CronExpr:       "0 9 * * *",
		IsActive:       true,
	}
	require.NoError(t, s.DB().Create(&workflow).Error)
	return workflow
}

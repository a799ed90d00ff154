package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"leadpulse/middleware"
	"leadpulse/models"
	"leadpulse/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkflowApp(t *testing.T, s *store.Store) *fiber.App {
	t.Helper()
	wc := NewWorkflowController(s, nil, testLogger())

	app := fiber.New()
	api := app.Group("/api/v1", middleware.Owner())

	workflow := api.Group("/workflows")
	workflow.Get("/stats", wc.GetJobStats)
	workflow.Post("/", wc.CreateWorkflow)
	workflow.Get("/", wc.GetWorkflows)
	workflow.Get("/:id", wc.GetWorkflow)
	workflow.Put("/:id", wc.UpdateWorkflow)
	workflow.Delete("/:id", wc.DeleteWorkflow)
	workflow.Get("/:id/executions", wc.GetExecutions)

	api.Get("/notification-preferences", wc.GetNotificationPreferences)
	api.Put("/notification-preferences", wc.UpdateNotificationPreferences)
	return app
}

func apiRequest(method, target string, payload interface{}) *http.Request {
	var body io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "1")
	return req
}

func decodeData(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	require.True(t, envelope.Success)
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func TestWorkflowRoutesRequireIdentity(t *testing.T) {
	s := newTestStore(t)
	app := newWorkflowApp(t, s)

	req := httptest.NewRequest("GET", "/api/v1/workflows/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCreateWorkflow(t *testing.T) {
	s := newTestStore(t)
	sequence := seedSequence(t, s, 1)
	app := newWorkflowApp(t, s)

	resp, err := app.Test(apiRequest("POST", "/api/v1/workflows/", fiber.Map{
		"name":            "Quarterly win-back",
		"inactivity_days": 30,
		"sequence_id":     sequence.ID,
		"cron_expr":       "0 9 * * 1",
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var created models.ReengagementWorkflow
	decodeData(t, resp, &created)
	assert.Equal(t, "Quarterly win-back", created.Name)
	assert.True(t, created.IsActive, "workflows default to active")

	var stored models.ReengagementWorkflow
	require.NoError(t, s.DB().First(&stored, created.ID).Error)
	assert.Equal(t, "0 9 * * 1", stored.CronExpr)
}

func TestCreateWorkflowRejectsBadCron(t *testing.T) {
	s := newTestStore(t)
	sequence := seedSequence(t, s, 1)
	app := newWorkflowApp(t, s)

	resp, err := app.Test(apiRequest("POST", "/api/v1/workflows/", fiber.Map{
		"name":            "Broken",
		"inactivity_days": 30,
		"sequence_id":     sequence.ID,
		"cron_expr":       "whenever you like",
	}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var count int64
	require.NoError(t, s.DB().Model(&models.ReengagementWorkflow{}).Count(&count).Error)
	assert.EqualValues(t, 0, count, "invalid schedule must never be saved")
}

func TestCreateWorkflowUnknownSequence(t *testing.T) {
	s := newTestStore(t)
	app := newWorkflowApp(t, s)

	resp, err := app.Test(apiRequest("POST", "/api/v1/workflows/", fiber.Map{
		"name":            "Orphan",
		"inactivity_days": 30,
		"sequence_id":     999,
		"cron_expr":       "0 9 * * *",
	}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetJobStatsAggregates(t *testing.T) {
	s := newTestStore(t)
	sequence := seedSequence(t, s, 1)

	first := models.ReengagementWorkflow{
		UserID: 1, Name: "Win-back A", InactivityDays: 30,
		SequenceID: sequence.ID, CronExpr: "0 9 * * *", IsActive: true,
	}
	require.NoError(t, s.DB().Create(&first).Error)
	second := models.ReengagementWorkflow{
		UserID: 1, Name: "Win-back B", InactivityDays: 60,
		SequenceID: sequence.ID, CronExpr: "0 9 * * 1", IsActive: false,
	}
	require.NoError(t, s.DB().Create(&second).Error)
	idle := models.ReengagementWorkflow{
		UserID: 1, Name: "Never ran", InactivityDays: 90,
		SequenceID: sequence.ID, CronExpr: "0 9 1 * *", IsActive: true,
	}
	require.NoError(t, s.DB().Create(&idle).Error)

	// The latest execution row carries the workflow's lifetime counters.
	require.NoError(t, s.DB().Create(&models.JobExecution{
		WorkflowID: first.ID, TotalExecutions: 10, SuccessfulExecutions: 8,
		FailedExecutions: 2, Status: models.RunStatusSuccess,
	}).Error)
	require.NoError(t, s.DB().Create(&models.JobExecution{
		WorkflowID: second.ID, TotalExecutions: 5, SuccessfulExecutions: 5,
		Status: models.RunStatusSuccess,
	}).Error)

	app := newWorkflowApp(t, s)
	resp, err := app.Test(apiRequest("GET", "/api/v1/workflows/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var stats JobStats
	decodeData(t, resp, &stats)

	assert.Equal(t, 3, stats.TotalJobs)
	assert.Equal(t, 2, stats.ActiveJobs)
	assert.Equal(t, 15, stats.TotalExecutions)
	assert.Equal(t, 13, stats.SuccessfulExecutions)
	assert.Equal(t, 2, stats.FailedExecutions)
	assert.InDelta(t, 86.7, stats.SuccessRate, 0.001)

	require.Len(t, stats.Jobs, 3)
	byName := map[string]JobStatsRow{}
	for _, row := range stats.Jobs {
		byName[row.WorkflowName] = row
	}

	assert.InDelta(t, 80.0, byName["Win-back A"].SuccessRate, 0.001)
	assert.Equal(t, 80, byName["Win-back A"].ProgressWidth)
	assert.InDelta(t, 100.0, byName["Win-back B"].SuccessRate, 0.001)
	assert.Equal(t, 100, byName["Win-back B"].ProgressWidth)
	assert.Equal(t, 0, byName["Never ran"].TotalExecutions)
	assert.Equal(t, 0, byName["Never ran"].ProgressWidth)
}

func TestGetJobStatsScopedToOwner(t *testing.T) {
	s := newTestStore(t)
	sequence := seedSequence(t, s, 2)

	other := models.ReengagementWorkflow{
		UserID: 2, Name: "Someone else's", InactivityDays: 30,
		SequenceID: sequence.ID, CronExpr: "0 9 * * *", IsActive: true,
	}
	require.NoError(t, s.DB().Create(&other).Error)

	app := newWorkflowApp(t, s)
	resp, err := app.Test(apiRequest("GET", "/api/v1/workflows/stats", nil))
	require.NoError(t, err)

	var stats JobStats
	decodeData(t, resp, &stats)
	assert.Equal(t, 0, stats.TotalJobs)
}

func TestNotificationPreferencesDefaultsAndUpsert(t *testing.T) {
	s := newTestStore(t)
	app := newWorkflowApp(t, s)

	resp, err := app.Test(apiRequest("GET", "/api/v1/notification-preferences", nil))
	require.NoError(t, err)

	var prefs models.NotificationPreferences
	decodeData(t, resp, &prefs)
	assert.True(t, prefs.Enabled)
	assert.True(t, prefs.OnSuccess)
	assert.True(t, prefs.OnFailure)
	assert.True(t, prefs.OnPartial)
	assert.False(t, prefs.BatchNotifications)

	resp, err = app.Test(apiRequest("PUT", "/api/v1/notification-preferences", fiber.Map{
		"recipient":           "owner@example.com",
		"enabled":             true,
		"on_failure":          true,
		"batch_notifications": true,
	}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	decodeData(t, resp, &prefs)

	resp, err = app.Test(apiRequest("GET", "/api/v1/notification-preferences", nil))
	require.NoError(t, err)
	decodeData(t, resp, &prefs)
	assert.Equal(t, "owner@example.com", prefs.Recipient)
	assert.False(t, prefs.OnSuccess)
	assert.True(t, prefs.OnFailure)
	assert.True(t, prefs.BatchNotifications)
}

func TestUpdateNotificationPreferencesStoreFailure(t *testing.T) {
	s := newTestStore(t)
	app := newWorkflowApp(t, s)

	// A closed connection makes every query fail; that must surface as a
	// server error, not as a fresh preferences row.
	sqlDB, err := s.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	resp, err := app.Test(apiRequest("PUT", "/api/v1/notification-preferences", fiber.Map{
		"recipient": "owner@example.com",
		"enabled":   true,
	}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Failed to fetch preferences")
}

func TestUpdateWorkflowRevalidatesCron(t *testing.T) {
	s := newTestStore(t)
	sequence := seedSequence(t, s, 1)

	workflow := models.ReengagementWorkflow{
		UserID: 1, Name: "Win-back", InactivityDays: 30,
		SequenceID: sequence.ID, CronExpr: "0 9 * * *", IsActive: true,
	}
	require.NoError(t, s.DB().Create(&workflow).Error)

	app := newWorkflowApp(t, s)
	resp, err := app.Test(apiRequest("PUT", "/api/v1/workflows/1", fiber.Map{
		"name":            "Win-back",
		"inactivity_days": 30,
		"sequence_id":     sequence.ID,
		"cron_expr":       "61 * * * *",
	}))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var stored models.ReengagementWorkflow
	require.NoError(t, s.DB().First(&stored, workflow.ID).Error)
	assert.Equal(t, "0 9 * * *", stored.CronExpr)
}

package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"dilemma-arena/dilemma"
	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chattyAgents answers every question with a canned line and hands back a
// stable session id, recording the session each Chat call arrived with.
type chattyAgents struct {
	mu           sync.Mutex
	chatSessions []string
	actCalls     int
	actControl   string
}

func (a *chattyAgents) Chat(_ context.Context, _, message, sessionID string) (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatSessions = append(a.chatSessions, sessionID)
	return "answer to: " + message, "sess-1", nil
}

func (a *chattyAgents) Act(_ context.Context, _, _, actionControl, _ string) (map[string]any, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actCalls++
	a.actControl = actionControl
	return map[string]any{
		"cooperation_tendency": 72.0,
		"trust_level":          60.0,
		"risk_tolerance":       41.0,
		"forgiveness":          80.0,
		"rationality":          55.0,
		"tags":                 []any{"forgiving", "steady"},
	}, "", nil
}

func questionnaireApp(svc *QuestionnaireService, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/questionnaire", svc.HandleStatus)
	app.Post("/questionnaire", svc.HandleSubmit)
	app.Put("/questionnaire", svc.HandleEdit)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSubmitUserAnswer(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	agents := &chattyAgents{}
	svc := NewQuestionnaireService(db, agents, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	resp, body := postJSON(t, app, "/questionnaire", fiber.Map{
		"mode": "user", "questionIndex": 0, "answer": "I keep my promises.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["completed"])
	assert.Equal(t, float64(1), body["total_answered"])

	var q models.Questionnaire
	require.NoError(t, db.First(&q, "user_id = ?", alice.ID).Error)
	answers := q.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, "I keep my promises.", answers[0].Answer)
	assert.Equal(t, models.AnswerSourceUser, answers[0].Source)
	assert.Empty(t, agents.chatSessions, "user-provided answers must not call the agent")
}

func TestSubmitAgentAnswer(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	agents := &chattyAgents{}
	svc := NewQuestionnaireService(db, agents, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	resp, body := postJSON(t, app, "/questionnaire", fiber.Map{
		"mode": "agent", "questionIndex": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["answer"], dilemma.QuestionPrompt(2))

	var q models.Questionnaire
	require.NoError(t, db.First(&q, "user_id = ?", alice.ID).Error)
	answers := q.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, models.AnswerSourceAgent, answers[0].Source)
}

func TestSubmitRejectsBadQuestionIndex(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	svc := NewQuestionnaireService(db, &chattyAgents{}, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	resp, _ := postJSON(t, app, "/questionnaire", fiber.Map{
		"mode": "user", "questionIndex": len(dilemma.Questions), "answer": "x",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitAutoAllThreadsOneSession(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	agents := &chattyAgents{}
	svc := NewQuestionnaireService(db, agents, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	// Two answers already on file; auto_all fills in only the rest.
	q := &models.Questionnaire{ID: "q-1", UserID: alice.ID}
	q.SetAnswers([]models.Answer{
		{QuestionIndex: 0, Question: dilemma.QuestionPrompt(0), Answer: "a0", Source: models.AnswerSourceUser},
		{QuestionIndex: 3, Question: dilemma.QuestionPrompt(3), Answer: "a3", Source: models.AnswerSourceUser},
	})
	require.NoError(t, db.Create(q).Error)

	resp, body := postJSON(t, app, "/questionnaire", fiber.Map{"mode": "auto_all"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["completed"])
	assert.NotNil(t, body["personality"])

	wantCalls := len(dilemma.Questions) - 2
	require.Len(t, agents.chatSessions, wantCalls)
	// First call opens the session, every later call continues it.
	assert.Equal(t, "", agents.chatSessions[0])
	for _, s := range agents.chatSessions[1:] {
		assert.Equal(t, "sess-1", s)
	}

	var stored models.Questionnaire
	require.NoError(t, db.First(&stored, "user_id = ?", alice.ID).Error)
	assert.True(t, stored.Completed)
	assert.Len(t, stored.Answers(), len(dilemma.Questions))

	// Completion triggered exactly one analysis with the profile control.
	assert.Equal(t, 1, agents.actCalls)
	assert.Equal(t, dilemma.PersonalityActionControl, agents.actControl)
	profile, ok := stored.Personality()
	require.True(t, ok)
	assert.Equal(t, 72.0, profile.CooperationTendency)
	assert.Equal(t, []string{"forgiving", "steady"}, profile.Tags)
}

func TestCompletionTriggersAnalysis(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	agents := &chattyAgents{}
	svc := NewQuestionnaireService(db, agents, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	for i := range dilemma.Questions {
		resp, body := postJSON(t, app, "/questionnaire", fiber.Map{
			"mode": "user", "questionIndex": i, "answer": fmt.Sprintf("answer %d", i),
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		wantDone := i == len(dilemma.Questions)-1
		assert.Equal(t, wantDone, body["completed"])
	}
	assert.Equal(t, 1, agents.actCalls)
}

func TestHandleEditRewritesAnswer(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	svc := NewQuestionnaireService(db, &chattyAgents{}, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	q := &models.Questionnaire{ID: "q-1", UserID: alice.ID}
	q.SetAnswers([]models.Answer{
		{QuestionIndex: 1, Question: dilemma.QuestionPrompt(1), Answer: "old", Source: models.AnswerSourceAgent},
	})
	require.NoError(t, db.Create(q).Error)

	payload, _ := json.Marshal(fiber.Map{"questionIndex": 1, "newAnswer": "new take"})
	req := httptest.NewRequest(http.MethodPut, "/questionnaire", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stored models.Questionnaire
	require.NoError(t, db.First(&stored, "user_id = ?", alice.ID).Error)
	answers := stored.Answers()
	require.Len(t, answers, 1)
	assert.Equal(t, "new take", answers[0].Answer)
	assert.Equal(t, models.AnswerSourceUserEdited, answers[0].Source)
}

func TestStatusReportsProgress(t *testing.T) {
	db := openTestDB(t)
	alice := seedUser(t, db, "Alice", false)
	svc := NewQuestionnaireService(db, &chattyAgents{}, staticCredentials{})
	app := questionnaireApp(svc, alice.ID)

	req := httptest.NewRequest(http.MethodGet, "/questionnaire", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["completed"])
	assert.Equal(t, float64(len(dilemma.Questions)), body["total_questions"])
}

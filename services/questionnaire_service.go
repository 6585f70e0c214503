package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"dilemma-arena/dilemma"
	"dilemma-arena/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AgentClient is the full conversational surface the questionnaire needs:
// open-ended chat for answering questions and structured act for the
// personality analysis. Satisfied by *secondme.Client.
type AgentClient interface {
	Chat(ctx context.Context, accessToken, message, sessionID string) (string, string, error)
	Act(ctx context.Context, accessToken, message, actionControl, sessionID string) (map[string]any, string, error)
}

// QuestionnaireService runs the personality questionnaire: a user's agent
// (or the user themselves) answers the fixed question set, and on completion
// the agent analyzes the answers into a personality profile.
type QuestionnaireService struct {
	DB          *gorm.DB
	Agents      AgentClient
	Credentials CredentialSource
}

func NewQuestionnaireService(db *gorm.DB, agents AgentClient, credentials CredentialSource) *QuestionnaireService {
	return &QuestionnaireService{DB: db, Agents: agents, Credentials: credentials}
}

func (s *QuestionnaireService) load(userID string) (*models.Questionnaire, error) {
	var q models.Questionnaire
	err := s.DB.First(&q, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// HandleStatus reports questionnaire progress plus the question set.
func (s *QuestionnaireService) HandleStatus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	q, err := s.load(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	resp := fiber.Map{
		"completed":       false,
		"answers":         []models.Answer{},
		"personality":     nil,
		"total_questions": len(dilemma.Questions),
		"questions":       dilemma.Questions,
	}
	if q != nil {
		resp["completed"] = q.Completed
		if answers := q.Answers(); answers != nil {
			resp["answers"] = answers
		}
		if profile, ok := q.Personality(); ok {
			resp["personality"] = profile
		}
	}
	return c.JSON(resp)
}

type submitRequest struct {
	Mode          string `json:"mode"`
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

// HandleSubmit records one answer, or in auto_all mode lets the agent answer
// every remaining question in a single continuous session.
func (s *QuestionnaireService) HandleSubmit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	if req.Mode == "auto_all" {
		return s.submitAutoAll(c, userID)
	}
	return s.submitOne(c, userID, req)
}

func (s *QuestionnaireService) submitOne(c *fiber.Ctx, userID string, req submitRequest) error {
	question := dilemma.QuestionPrompt(req.QuestionIndex)
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid question index"})
	}

	var answerText, source string
	if req.Mode == "user" && req.Answer != "" {
		answerText = req.Answer
		source = models.AnswerSourceUser
	} else {
		token, err := s.Credentials.AccessTokenFor(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "agent credential unavailable"})
		}
		answerText, _, err = s.Agents.Chat(c.Context(), token, question, "")
		if err != nil {
			log.Printf("[Questionnaire] agent answer failed for user %s: %v", userID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "agent did not answer, retry later"})
		}
		source = models.AnswerSourceAgent
	}

	q, err := s.appendAnswer(userID, models.Answer{
		QuestionIndex: req.QuestionIndex,
		Question:      question,
		Answer:        answerText,
		Source:        source,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save answer"})
	}

	var profile *models.PersonalityProfile
	if q.Completed {
		profile = s.analyze(c.Context(), userID, q)
	}

	return c.JSON(fiber.Map{
		"answer":         answerText,
		"current_index":  req.QuestionIndex,
		"total_answered": len(q.Answers()),
		"completed":      q.Completed,
		"personality":    profile,
	})
}

// submitAutoAll walks every unanswered question with the agent, threading
// the stream's session id across calls so the agent answers in one
// continuous conversation.
func (s *QuestionnaireService) submitAutoAll(c *fiber.Ctx, userID string) error {
	token, err := s.Credentials.AccessTokenFor(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "agent credential unavailable"})
	}

	q, err := s.load(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}

	var answers []models.Answer
	if q != nil {
		answers = q.Answers()
	}
	answered := make(map[int]bool, len(answers))
	for _, a := range answers {
		answered[a.QuestionIndex] = true
	}

	var newAnswers []models.Answer
	sessionID := ""
	for i := range dilemma.Questions {
		if answered[i] {
			continue
		}
		question := dilemma.QuestionPrompt(i)

		var text string
		text, sessionID, err = s.Agents.Chat(c.Context(), token, question, sessionID)
		if err != nil {
			log.Printf("[Questionnaire] auto_all aborted at question %d for user %s: %v", i, userID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "agent did not answer, retry later"})
		}

		entry := models.Answer{QuestionIndex: i, Question: question, Answer: text, Source: models.AnswerSourceAgent}
		answers = append(answers, entry)
		newAnswers = append(newAnswers, entry)
	}

	q, err = s.saveAnswers(userID, q, answers)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save answers"})
	}

	profile := s.analyze(c.Context(), userID, q)
	return c.JSON(fiber.Map{
		"new_answers": newAnswers,
		"completed":   true,
		"personality": profile,
	})
}

// HandleEdit rewrites an existing answer; the analysis is not rerun here,
// admins trigger that separately if the edit matters.
func (s *QuestionnaireService) HandleEdit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		QuestionIndex int    `json:"questionIndex"`
		NewAnswer     string `json:"newAnswer"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}

	q, err := s.load(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	if q == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "questionnaire not found"})
	}

	answers := q.Answers()
	found := false
	for i := range answers {
		if answers[i].QuestionIndex == req.QuestionIndex {
			answers[i].Answer = req.NewAnswer
			answers[i].Source = models.AnswerSourceUserEdited
			found = true
			break
		}
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "question not answered yet"})
	}

	q.SetAnswers(answers)
	if err := s.DB.Save(q).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save answers"})
	}
	return c.JSON(fiber.Map{"success": true, "answers": answers})
}

func (s *QuestionnaireService) appendAnswer(userID string, answer models.Answer) (*models.Questionnaire, error) {
	q, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	var answers []models.Answer
	if q != nil {
		answers = q.Answers()
	}
	answers = append(answers, answer)
	return s.saveAnswers(userID, q, answers)
}

func (s *QuestionnaireService) saveAnswers(userID string, q *models.Questionnaire, answers []models.Answer) (*models.Questionnaire, error) {
	if q == nil {
		q = &models.Questionnaire{ID: uuid.NewString(), UserID: userID}
	}
	q.SetAnswers(answers)
	q.Completed = len(answers) >= len(dilemma.Questions)
	if err := s.DB.Save(q).Error; err != nil {
		return nil, err
	}
	return q, nil
}

// analyze asks the agent for the structured personality profile over all
// answers. Failures are logged and swallowed: analysis can be re-triggered,
// an unanalyzed-but-complete questionnaire is not an error state.
func (s *QuestionnaireService) analyze(ctx context.Context, userID string, q *models.Questionnaire) *models.PersonalityProfile {
	token, err := s.Credentials.AccessTokenFor(ctx, userID)
	if err != nil {
		log.Printf("[Questionnaire] analysis skipped for user %s: %v", userID, err)
		return nil
	}

	var sb strings.Builder
	for _, a := range q.Answers() {
		fmt.Fprintf(&sb, "Question: %s\nAnswer: %s\n\n", a.Question, a.Answer)
	}

	result, _, err := s.Agents.Act(ctx, token, sb.String(), dilemma.PersonalityActionControl, "")
	if err != nil {
		log.Printf("[Questionnaire] personality analysis failed for user %s: %v", userID, err)
		return nil
	}

	profile := parseProfile(result)
	q.SetPersonality(profile)
	if err := s.DB.Save(q).Error; err != nil {
		log.Printf("[Questionnaire] failed to store personality for user %s: %v", userID, err)
		return nil
	}
	return &profile
}

// parseProfile converts the agent's loose JSON object into the structured
// profile; a JSON round-trip tolerates numbers arriving as float64 and tags
// as []any.
func parseProfile(result map[string]any) models.PersonalityProfile {
	var profile models.PersonalityProfile
	data, _ := json.Marshal(result)
	_ = json.Unmarshal(data, &profile)
	return profile
}

package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// User is a SecondMe account that plays through its agent. Created on first
// OAuth login, never deleted.
type User struct {
	ID                string `gorm:"primaryKey" json:"id"`
	SecondMeUserID    string `gorm:"uniqueIndex;not null" json:"secondme_user_id"`
	Name              string `gorm:"index" json:"name"`
	Email             string `json:"email,omitempty"`
	AvatarURL         string `json:"avatar_url,omitempty"`
	MirroredAvatarURL string `json:"mirrored_avatar_url,omitempty"`
	RouteSlug         string `gorm:"index" json:"route_slug,omitempty"`

	// Lifetime totals, settled exactly once per finished game.
	TotalScore  int64 `json:"total_score" gorm:"default:0"`
	GamesPlayed int64 `json:"games_played" gorm:"default:0"`

	// OAuth credential state, managed by AuthService only.
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"-"`

	Questionnaire *Questionnaire `json:"questionnaire,omitempty" gorm:"foreignKey:UserID"`

	Timestamps
}

// PublicUser is the participant shape embedded in game responses.
type PublicUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (u *User) Public() PublicUser {
	avatar := u.AvatarURL
	if u.MirroredAvatarURL != "" {
		avatar = u.MirroredAvatarURL
	}
	return PublicUser{ID: u.ID, Name: u.Name, AvatarURL: avatar}
}

// Questionnaire answer provenance.
const (
	AnswerSourceAgent      = "agent"
	AnswerSourceUser       = "user"
	AnswerSourceUserEdited = "user_edited"
)

// Answer is one answered questionnaire item.
type Answer struct {
	QuestionIndex int    `json:"question_index"`
	Question      string `json:"question"`
	Answer        string `json:"answer"`
	Source        string `json:"source"`
}

// PersonalityProfile is the structured result of the personality analysis:
// trait scores on a 0-100 scale plus free-form tags.
type PersonalityProfile struct {
	CooperationTendency float64  `json:"cooperation_tendency"`
	TrustLevel          float64  `json:"trust_level"`
	RiskTolerance       float64  `json:"risk_tolerance"`
	Forgiveness         float64  `json:"forgiveness"`
	Rationality         float64  `json:"rationality"`
	Tags                []string `json:"tags"`
}

// Questionnaire holds a user's answers and the derived personality profile.
// Answers and profile are structured values in code; they become JSON text
// only here, at the persistence edge.
type Questionnaire struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	AnswersJSON     string `gorm:"type:text" json:"-"`
	PersonalityJSON string `gorm:"type:text" json:"-"`
	Completed       bool   `gorm:"default:false;index" json:"completed"`

	Timestamps
}

func (q *Questionnaire) Answers() []Answer {
	if q == nil || q.AnswersJSON == "" {
		return nil
	}
	var answers []Answer
	if err := json.Unmarshal([]byte(q.AnswersJSON), &answers); err != nil {
		return nil
	}
	return answers
}

func (q *Questionnaire) SetAnswers(answers []Answer) {
	data, _ := json.Marshal(answers)
	q.AnswersJSON = string(data)
}

func (q *Questionnaire) Personality() (PersonalityProfile, bool) {
	if q == nil || q.PersonalityJSON == "" {
		return PersonalityProfile{}, false
	}
	var profile PersonalityProfile
	if err := json.Unmarshal([]byte(q.PersonalityJSON), &profile); err != nil {
		return PersonalityProfile{}, false
	}
	return profile, true
}

func (q *Questionnaire) SetPersonality(profile PersonalityProfile) {
	data, _ := json.Marshal(profile)
	q.PersonalityJSON = string(data)
}

// PersonalityTags returns the profile tags, or nil when no analysis exists.
func (q *Questionnaire) PersonalityTags() []string {
	profile, ok := q.Personality()
	if !ok {
		return nil
	}
	return profile.Tags
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

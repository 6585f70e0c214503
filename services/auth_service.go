package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dilemma-arena/middleware"
	"dilemma-arena/models"
	"dilemma-arena/secondme"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

// oauthScopes the arena needs from SecondMe.
const oauthScopes = "user.info,chat,act"

// accessTokenTTL: SecondMe does not return an expiry, tokens live ~2h.
const accessTokenTTL = 2 * time.Hour

// AuthConfig carries the SecondMe OAuth wiring.
type AuthConfig struct {
	OAuthURL      string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	TokenEndpoint string
}

// AuthService owns the OAuth login flow and the credential lifecycle for
// every user's agent token. Other services go through AccessTokenFor and
// never touch token columns directly.
type AuthService struct {
	DB       *gorm.DB
	SecondMe *secondme.Client
	Sessions *middleware.SessionAuth
	Config   AuthConfig
	HTTP     *http.Client
}

func NewAuthService(db *gorm.DB, sm *secondme.Client, sessions *middleware.SessionAuth, cfg AuthConfig) *AuthService {
	return &AuthService{
		DB:       db,
		SecondMe: sm,
		Sessions: sessions,
		Config:   cfg,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// LoginURL is the SecondMe consent page for this app.
func (s *AuthService) LoginURL() string {
	return fmt.Sprintf("%s?client_id=%s&redirect_uri=%s&scope=%s&response_type=code",
		s.Config.OAuthURL, s.Config.ClientID,
		url.QueryEscape(s.Config.RedirectURI), url.QueryEscape(oauthScopes))
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// tokenCall posts a form to the token endpoint and unwraps the
// {code, data} envelope SecondMe responds with.
func (s *AuthService) tokenCall(ctx context.Context, path string, form url.Values) (*tokenData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.Config.TokenEndpoint+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secondme token endpoint: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var raw struct {
		Code int       `json:"code"`
		Data tokenData `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil || raw.Data.AccessToken == "" {
		// Some deployments answer unwrapped.
		var flat tokenData
		if err := json.Unmarshal(body, &flat); err == nil && flat.AccessToken != "" {
			return &flat, nil
		}
		return nil, fmt.Errorf("token call failed: %s", body)
	}
	return &raw.Data, nil
}

func (s *AuthService) exchangeCode(ctx context.Context, code string) (*tokenData, error) {
	return s.tokenCall(ctx, "/code", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {s.Config.ClientID},
		"client_secret": {s.Config.ClientSecret},
		"redirect_uri":  {s.Config.RedirectURI},
	})
}

func (s *AuthService) refreshToken(ctx context.Context, refreshToken string) (*tokenData, error) {
	return s.tokenCall(ctx, "/refresh", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {s.Config.ClientID},
		"client_secret": {s.Config.ClientSecret},
	})
}

// AccessTokenFor returns a live access token for a user's agent, refreshing
// it first when expired. A user whose refresh also fails has no usable
// credential, which is a hard failure for their agent calls.
func (s *AuthService) AccessTokenFor(ctx context.Context, userID string) (string, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return "", ErrNoCredential
	}

	if time.Now().Before(user.TokenExpiresAt) {
		return user.AccessToken, nil
	}

	fresh, err := s.refreshToken(ctx, user.RefreshToken)
	if err != nil {
		log.Printf("[Auth] token refresh failed for user %s: %v", userID, err)
		return "", ErrNoCredential
	}

	updates := map[string]interface{}{
		"access_token":     fresh.AccessToken,
		"token_expires_at": time.Now().Add(accessTokenTTL),
	}
	if fresh.RefreshToken != "" {
		updates["refresh_token"] = fresh.RefreshToken
	}
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return "", err
	}
	return fresh.AccessToken, nil
}

// HandleLogin redirects the browser to the SecondMe consent page.
func (s *AuthService) HandleLogin(c *fiber.Ctx) error {
	return c.Redirect(s.LoginURL(), fiber.StatusFound)
}

// HandleCallback finishes the OAuth dance: exchange the code, fetch the
// agent owner's profile, upsert the user, and open a session.
func (s *AuthService) HandleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return c.Redirect("/?error=no_code", fiber.StatusFound)
	}

	tokens, err := s.exchangeCode(c.Context(), code)
	if err != nil {
		log.Printf("[Auth] code exchange failed: %v", err)
		return c.Redirect("/?error=auth_failed", fiber.StatusFound)
	}

	info, err := s.SecondMe.GetUserInfo(c.Context(), tokens.AccessToken)
	if err != nil {
		log.Printf("[Auth] user info fetch failed: %v", err)
		return c.Redirect("/?error=auth_failed", fiber.StatusFound)
	}

	user, err := s.upsertUser(info, tokens)
	if err != nil {
		log.Printf("[Auth] user upsert failed: %v", err)
		return c.Redirect("/?error=auth_failed", fiber.StatusFound)
	}

	if err := s.Sessions.Issue(c, user.ID); err != nil {
		return c.Redirect("/?error=auth_failed", fiber.StatusFound)
	}

	// Send fresh profiles to the questionnaire first.
	var q models.Questionnaire
	err = s.DB.First(&q, "user_id = ?", user.ID).Error
	if err == nil && q.Completed {
		return c.Redirect("/match", fiber.StatusFound)
	}
	return c.Redirect("/questionnaire", fiber.StatusFound)
}

func (s *AuthService) upsertUser(info *secondme.UserInfo, tokens *tokenData) (*models.User, error) {
	remoteID := info.Route
	if remoteID == "" {
		remoteID = info.Email
	}
	if remoteID == "" {
		return nil, errors.New("secondme profile has no stable identifier")
	}

	name := info.Name
	if name == "" {
		name = info.Email
	}
	routeSlug := slug.Make(norm.NFC.String(name))
	expiresAt := time.Now().Add(accessTokenTTL)

	var user models.User
	err := s.DB.First(&user, "second_me_user_id = ?", remoteID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			ID:             uuid.NewString(),
			SecondMeUserID: remoteID,
			Name:           name,
			Email:          info.Email,
			AvatarURL:      info.AvatarURL,
			RouteSlug:      routeSlug,
			AccessToken:    tokens.AccessToken,
			RefreshToken:   tokens.RefreshToken,
			TokenExpiresAt: expiresAt,
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return nil, err
		}
		log.Printf("[Auth] new user %s (%s)", user.ID, user.Name)
	case err != nil:
		return nil, err
	default:
		updates := map[string]interface{}{
			"name":             name,
			"email":            info.Email,
			"avatar_url":       info.AvatarURL,
			"route_slug":       routeSlug,
			"access_token":     tokens.AccessToken,
			"refresh_token":    tokens.RefreshToken,
			"token_expires_at": expiresAt,
		}
		if err := s.DB.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return &user, nil
}

// HandleMe returns the logged-in user with questionnaire status.
func (s *AuthService) HandleMe(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var user models.User
	if err := s.DB.Preload("Questionnaire").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not logged in"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(user)
}

// HandleLogout drops the session cookie.
func (s *AuthService) HandleLogout(c *fiber.Ctx) error {
	s.Sessions.Clear(c)
	return c.JSON(fiber.Map{"success": true})
}

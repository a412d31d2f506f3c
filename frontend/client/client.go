package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/jghoshh/habitual/backend/models"
	"github.com/jghoshh/habitual/backend/service"
	"github.com/zalando/go-keyring"
)

// KeyringService is the name of the service in the system keyring where the token is stored.
const KeyringService = "Habitual"

// KeyringKey is the keyring entry holding the bearer token.
var KeyringKey = "auth_token"

// ServerURL is the URL of the server the client is connecting to.
var ServerURL string

// client is the HTTP client used to make requests to the server.
var client = &http.Client{Timeout: 15 * time.Second}

// ErrNotSignedIn is returned by calls that need a token when none is stored.
var ErrNotSignedIn = errors.New("no user is currently signed in")

// APIError is a non-2xx answer of the server.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// ToggleResult is the habit after a toggle and the status it moved to.
type ToggleResult struct {
	Habit  models.Habit     `json:"habit"`
	Status models.DayStatus `json:"status"`
}

// InitClient sets the server URL and, when keyringKey is not empty, the keyring entry name.
// This function must be called before using any other functions in the package.
func InitClient(serverURL, keyringKey string) {
	ServerURL = serverURL
	if keyringKey != "" {
		KeyringKey = keyringKey
	}
}

// TokenClaims reads the subject, email and expiry of token without
// verifying its signature; the server does that on every request.
func TokenClaims(token string) (userID, email string, expires time.Time, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token: %w", err)
	}

	userID, _ = claims["id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	email, _ = claims["email"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		expires = time.Unix(int64(exp), 0)
	}
	return userID, email, expires, nil
}

// StoredToken returns the token in the keyring, or ErrNotSignedIn.
func StoredToken() (string, error) {
	token, err := keyring.Get(KeyringService, KeyringKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotSignedIn
	}
	if err != nil {
		return "", fmt.Errorf("failed to access keyring: %w", err)
	}
	return token, nil
}

// IsUserAuthenticated reports whether an unexpired token is stored.
func IsUserAuthenticated() bool {
	token, err := StoredToken()
	if err != nil {
		return false
	}
	_, _, expires, err := TokenClaims(token)
	if err != nil {
		return false
	}
	return expires.IsZero() || time.Now().Before(expires)
}

// SignIn checks token against the server and stores it in the keyring.
func SignIn(token string) (string, error) {
	userID, _, _, err := TokenClaims(token)
	if err != nil {
		return "", err
	}
	if err := request(http.MethodGet, "/version", token, nil, nil); err != nil {
		return "", err
	}
	if err := keyring.Set(KeyringService, KeyringKey, token); err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}
	return userID, nil
}

// SignOut removes the stored token.
func SignOut() error {
	err := keyring.Delete(KeyringService, KeyringKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}

// request sends body as JSON and decodes a 2xx answer into out. Other
// answers become an *APIError.
func request(method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	req, err := http.NewRequest(method, ServerURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(bodyBytes, out)
}

// UnmarshalJSON reads the server's {"error", "field"} body.
func (e *APIError) UnmarshalJSON(b []byte) error {
	var body struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return err
	}
	e.Message, e.Field = body.Error, body.Field
	return nil
}

// authed sends an authenticated request with the stored token.
func authed(method, path string, body, out interface{}) error {
	token, err := StoredToken()
	if err != nil {
		return err
	}
	return request(method, path, token, body, out)
}

func withDate(path, date string) string {
	if date == "" {
		return path
	}
	return path + "?date=" + url.QueryEscape(date)
}

// ListHabits returns the signed in user's habits.
func ListHabits() ([]models.Habit, error) {
	var habits []models.Habit
	err := authed(http.MethodGet, "/habits", nil, &habits)
	return habits, err
}

// Week returns the weekly table of the week containing date, or this week.
func Week(date string) (*service.WeekResponse, error) {
	week := &service.WeekResponse{}
	if err := authed(http.MethodGet, withDate("/habits/week", date), nil, week); err != nil {
		return nil, err
	}
	return week, nil
}

// Day returns the habits due on date, or today.
func Day(date string) (*service.DayResponse, error) {
	day := &service.DayResponse{}
	if err := authed(http.MethodGet, withDate("/habits/day", date), nil, day); err != nil {
		return nil, err
	}
	return day, nil
}

// CreateHabit creates a habit.
func CreateHabit(in service.HabitInput) (*models.Habit, error) {
	habit := &models.Habit{}
	if err := authed(http.MethodPost, "/habits", in, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// UpdateHabit applies an edit to habit id.
func UpdateHabit(id string, in service.HabitUpdate) (*models.Habit, error) {
	habit := &models.Habit{}
	if err := authed(http.MethodPut, "/habits/"+url.PathEscape(id), in, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// Toggle advances the status of habit id on date.
func Toggle(id, date string) (*ToggleResult, error) {
	result := &ToggleResult{}
	body := map[string]string{"date": date}
	if err := authed(http.MethodPost, "/habits/"+url.PathEscape(id)+"/toggle", body, result); err != nil {
		return nil, err
	}
	return result, nil
}

// SetStatus records status for habit id on date.
func SetStatus(id, date string, status models.DayStatus) (*models.Habit, error) {
	habit := &models.Habit{}
	body := map[string]string{"date": date, "status": string(status)}
	if err := authed(http.MethodPut, "/habits/"+url.PathEscape(id)+"/status", body, habit); err != nil {
		return nil, err
	}
	return habit, nil
}

// DeleteHabit deletes habit id.
func DeleteHabit(id string) error {
	return authed(http.MethodDelete, "/habits/"+url.PathEscape(id), nil, nil)
}

// GetJournal returns the journal entry of date.
func GetJournal(date string) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{}
	if err := authed(http.MethodGet, withDate("/journal", date), nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SetJournal replaces the journal entry of date.
func SetJournal(date, content string) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{}
	body := service.JournalInput{Date: date, Content: content}
	if err := authed(http.MethodPut, "/journal", body, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ListCategories returns the signed in user's categories.
func ListCategories() ([]models.Category, error) {
	var categories []models.Category
	err := authed(http.MethodGet, "/categories", nil, &categories)
	return categories, err
}

// CreateCategory creates a category.
func CreateCategory(name, color string) (*models.Category, error) {
	category := &models.Category{}
	body := service.CategoryInput{Name: name, Color: color}
	if err := authed(http.MethodPost, "/categories", body, category); err != nil {
		return nil, err
	}
	return category, nil
}

// MigrateCategories runs the category backfill.
func MigrateCategories() (*service.BackfillResult, error) {
	result := &service.BackfillResult{}
	if err := authed(http.MethodPost, "/admin/migrate-categories", nil, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Version returns the data version of the signed in user.
func Version() (int64, error) {
	var body struct {
		Version int64 `json:"version"`
	}
	err := authed(http.MethodGet, "/version", nil, &body)
	return body.Version, err
}

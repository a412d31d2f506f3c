package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/logging"
	"github.com/jghoshh/habitual/backend/models"
	contextKey "github.com/jghoshh/habitual/backend/server/context_key"
	"github.com/jghoshh/habitual/backend/service"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds request bodies; journal entries are the largest.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type statusRequest struct {
	Date   string           `json:"date"`
	Status models.DayStatus `json:"status"`
}

type toggleRequest struct {
	Date string `json:"date"`
}

type toggleResponse struct {
	Habit  *models.Habit    `json:"habit"`
	Status models.DayStatus `json:"status"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type versionResponse struct {
	Version int64 `json:"version"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to write response")
	}
}

// writeError reports err with the status it maps to. Store and unexpected
// errors are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	resp := errorResponse{Error: err.Error()}

	var ve *apperrors.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Reason
		resp.Field = ve.Field
	}

	switch status {
	case http.StatusInternalServerError:
		logging.WithContext(r.Context()).WithError(err).Error("Request failed")
		resp.Error = "internal server error"
	case http.StatusUnauthorized:
		resp.Error = "unauthorized"
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads the request body into dest, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return apperrors.Invalid("body", fmt.Sprintf("malformed request body: %v", err))
	}
	return nil
}

func owner(r *http.Request) string {
	id, _ := r.Context().Value(contextKey.UserIDKey).(string)
	return id
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListHabits(w http.ResponseWriter, r *http.Request) {
	habits, err := s.svc.ListHabits(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habits)
}

func (s *Server) handleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var in service.HabitInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	habit, err := s.svc.CreateHabit(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

func (s *Server) handleUpdateHabit(w http.ResponseWriter, r *http.Request) {
	var in service.HabitUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	habit, err := s.svc.UpdateHabit(r.Context(), owner(r), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	habit, err := s.svc.SetStatus(r.Context(), owner(r), mux.Vars(r)["id"], in.Date, in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, habit)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var in toggleRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	habit, status, err := s.svc.Toggle(r.Context(), owner(r), mux.Vars(r)["id"], in.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Habit: habit, Status: status})
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteHabit(r.Context(), owner(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Habit deleted successfully"})
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	week, err := s.svc.Week(r.Context(), owner(r), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, week)
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	day, err := s.svc.Day(r.Context(), owner(r), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	entry, err := s.svc.GetJournal(r.Context(), owner(r), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleSetJournal(w http.ResponseWriter, r *http.Request) {
	var in service.JournalInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	entry, err := s.svc.SetJournal(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := s.svc.CreateCategory(r.Context(), owner(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RunBackfill(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.svc.Version(r.Context(), owner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: version})
}

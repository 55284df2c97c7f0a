package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"accounts-service/middleware"
	"accounts-service/models"
)

const maxBodyBytes = 1 << 20

type JSONResponse map[string]interface{}

// ProfileService is the profile access layer the handlers call into.
type ProfileService interface {
	Get(ctx context.Context, username string) (models.Profile, error)
	Update(ctx context.Context, in models.UpdateProfileInput) (models.Profile, error)
	Create(ctx context.Context, in models.CreateProfileInput) (models.Profile, error)
}

type ProfileHandler struct {
	profiles ProfileService
}

func NewProfileHandler(profiles ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// ViewHandler returns the profile named by ?username=, falling back to the
// authenticated caller.
func (h *ProfileHandler) ViewHandler(w http.ResponseWriter, r *http.Request) error {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		username = middleware.UsernameFromContext(r.Context())
	}
	if username == "" {
		return middleware.NewAppError(http.StatusBadRequest, "Username is required.", nil)
	}

	profile, err := h.profiles.Get(r.Context(), username)
	if err != nil {
		return profileError(err)
	}

	log.Printf("profile viewed username=%s", profile.Username)
	return writeJSON(w, http.StatusOK, profile)
}

func (h *ProfileHandler) EditHandler(w http.ResponseWriter, r *http.Request) error {
	var input models.UpdateProfileInput
	if err := decodeBody(w, r, &input); err != nil {
		return err
	}
	if strings.TrimSpace(input.Username) == "" {
		input.Username = middleware.UsernameFromContext(r.Context())
	}

	profile, err := h.profiles.Update(r.Context(), input)
	if err != nil {
		return profileError(err)
	}

	return writeJSON(w, http.StatusOK, JSONResponse{
		"message": "Profile updated successfully",
		"data":    profile,
	})
}

func (h *ProfileHandler) CreateHandler(w http.ResponseWriter, r *http.Request) error {
	var input models.CreateProfileInput
	if err := decodeBody(w, r, &input); err != nil {
		return err
	}

	profile, err := h.profiles.Create(r.Context(), input)
	if err != nil {
		return profileError(err)
	}

	return writeJSON(w, http.StatusCreated, JSONResponse{
		"message": "User created successfully",
		"data":    profile,
	})
}

func profileError(err error) error {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr) && validationErr.Missing():
		return middleware.NewAppError(http.StatusBadRequest, "All fields are required.", err)
	case validationErr != nil:
		return middleware.NewAppError(http.StatusBadRequest, "Fields exceed maximum length.", err)
	case errors.Is(err, models.ErrNotFound):
		return middleware.NewAppError(http.StatusNotFound, "User not found.", err)
	case errors.Is(err, models.ErrAlreadyExists):
		return middleware.NewAppError(http.StatusConflict, "User already exists.", err)
	default:
		return middleware.NewAppError(http.StatusInternalServerError, "Internal server error.", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return middleware.NewAppError(http.StatusBadRequest, "Invalid request payload", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

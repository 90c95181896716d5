// handlers/geo/geotrack_handler.go

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enesyuzak/locat-web-tracker/internal/middleware"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
	services "github.com/enesyuzak/locat-web-tracker/internal/services/geo"
)

// TrackService is the device-facing side of the location store.
type TrackService interface {
	HandleUpdate(ctx context.Context, ping *models.LocationPing) error
	LastLocation(ctx context.Context, userID string) (*models.LocationPing, error)
	History(ctx context.Context, userID string, from, to time.Time) ([]models.LocationPing, error)
}

type GeoTrackHandler struct {
	service TrackService
}

func NewGeoTrackHandler(service TrackService) *GeoTrackHandler {
	return &GeoTrackHandler{service: service}
}

// PostGeo stores a ping for the authenticated user. Any user_id in the body is
// overwritten.
func (h *GeoTrackHandler) PostGeo(w http.ResponseWriter, r *http.Request) {
	var ping models.LocationPing
	if err := response.DecodeJSON(r, &ping); err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}
	ping.UserID = userID
	ping.ID = 0

	if err := h.service.HandleUpdate(r.Context(), &ping); err != nil {
		if errors.Is(err, services.ErrInvalidPing) {
			response.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		response.RespondWithError(w, http.StatusInternalServerError, "Failed to save location")
		return
	}

	response.RespondWithJSON(w, http.StatusCreated, ping)
}

func (h *GeoTrackHandler) GetLast(w http.ResponseWriter, r *http.Request) {
	ping, err := h.service.LastLocation(r.Context(), chi.URLParam(r, "userID"))
	if errors.Is(err, services.ErrNoLocation) {
		response.RespondWithError(w, http.StatusNotFound, "No location for user")
		return
	}
	if err != nil {
		response.RespondWithError(w, http.StatusInternalServerError, "DB error")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, ping)
}

// GetHistory accepts optional RFC3339 from/to query parameters.
func (h *GeoTrackHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid 'from' time, expected RFC3339")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		response.RespondWithError(w, http.StatusBadRequest, "Invalid 'to' time, expected RFC3339")
		return
	}

	pings, err := h.service.History(r.Context(), chi.URLParam(r, "userID"), from, to)
	if errors.Is(err, services.ErrBadRange) {
		response.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		response.RespondWithError(w, http.StatusInternalServerError, "DB error")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, pings)
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

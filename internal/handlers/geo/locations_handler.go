package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/enesyuzak/locat-web-tracker/internal/middleware"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/pkg/response"
	"github.com/enesyuzak/locat-web-tracker/internal/services/export"
	services "github.com/enesyuzak/locat-web-tracker/internal/services/geo"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type DashboardService interface {
	Current() models.DashboardView
	Refresh(ctx context.Context) (models.DashboardView, error)
}

type TriggerService interface {
	Start(ctx context.Context, ownerID string) (services.TriggerOutcome, *services.TriggerRun, error)
}

type SheetsAppender interface {
	Append(ctx context.Context, users []models.UserSnapshot, exportedAt time.Time) (int64, error)
}

type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// LocationsHandler serves the dashboard view and the admin actions on it.
type LocationsHandler struct {
	dashboard DashboardService
	trigger   TriggerService
	sheets    SheetsAppender
	hub       SocketServer
	// background work outlives the request but not the server
	baseCtx context.Context
	logger  *zap.Logger
	now     func() time.Time
}

func NewLocationsHandler(baseCtx context.Context, dashboard DashboardService, trigger TriggerService, sheets SheetsAppender, hub SocketServer, logger *zap.Logger) *LocationsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationsHandler{
		dashboard: dashboard,
		trigger:   trigger,
		sheets:    sheets,
		hub:       hub,
		baseCtx:   baseCtx,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns the current view, optionally filtered by ?q=.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	view := h.dashboard.Current()
	view.Users = services.FilterSnapshots(view.Users, r.URL.Query().Get("q"))
	response.RespondWithJSON(w, http.StatusOK, view)
}

// Refresh rebuilds the view now. A failed fetch answers 503 with the previous view.
func (h *LocationsHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	view, err := h.dashboard.Refresh(r.Context())
	if err != nil {
		h.logger.Warn("manual refresh failed", zap.Error(err))
		response.RespondWithJSON(w, http.StatusServiceUnavailable, view)
		return
	}
	response.RespondWithJSON(w, http.StatusOK, view)
}

// RequestFresh writes the trigger rows and leaves the wait to a background
// goroutine bound to the server lifetime.
func (h *LocationsHandler) RequestFresh(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}

	outcome, run, err := h.trigger.Start(r.Context(), ownerID)
	switch {
	case errors.Is(err, services.ErrTriggerInProgress):
		response.RespondWithError(w, http.StatusConflict, "A location request is already running")
		return
	case errors.Is(err, services.ErrTriggerRejected):
		response.RespondWithError(w, http.StatusBadGateway, "Location request could not be written")
		return
	case err != nil:
		h.logger.Error("location request failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Location request failed")
		return
	}

	if run == nil {
		response.RespondWithJSON(w, http.StatusOK, map[string]string{"status": outcome.String()})
		return
	}

	go func() {
		if _, err := run.Await(h.baseCtx); err != nil {
			h.logger.Info("location request wait aborted", zap.Error(err))
		}
	}()

	response.RespondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  outcome.String(),
		"targets": len(run.Targets()),
	})
}

func (h *LocationsHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, h.dashboard.Current().Users, now); err != nil {
		h.logger.Error("xlsx export failed", zap.Error(err))
		response.RespondWithError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	filename := fmt.Sprintf("locations-%s.xlsx", now.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *LocationsHandler) ExportSheets(w http.ResponseWriter, r *http.Request) {
	if h.sheets == nil {
		response.RespondWithError(w, http.StatusNotImplemented, "Google Sheets export is not configured")
		return
	}
	rows, err := h.sheets.Append(r.Context(), h.dashboard.Current().Users, h.now())
	if err != nil {
		h.logger.Error("sheets export failed", zap.Error(err))
		response.RespondWithError(w, http.StatusBadGateway, "Google Sheets export failed")
		return
	}
	response.RespondWithJSON(w, http.StatusOK, map[string]int64{"rows": rows})
}

func (h *LocationsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		response.RespondWithError(w, http.StatusUnauthorized, "User ID not found in context")
		return
	}
	h.hub.ServeWS(w, r, userID)
}

// Package http exposes the validation engine over a small JSON API plus a
// WebSocket progress feed.
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	gorilla "github.com/gorilla/websocket"

	apierrors "coursecheck/internal/errors"
	"coursecheck/internal/runner"
	"coursecheck/internal/websocket"
	"coursecheck/pkg/contracts/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler handles validation run HTTP requests.
type Handler struct {
	service  *RunService
	hub      *websocket.Hub
	logger   *slog.Logger
	upgrader gorilla.Upgrader
}

// NewHandler creates the API handler.
func NewHandler(service *RunService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	if service == nil {
		panic("service cannot be nil")
	}
	if hub == nil {
		panic("hub cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger.With(slog.String("handler", "runs")),
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// StartRunRequest is the body of POST /api/runs.
type StartRunRequest struct {
	SourceType  string `json:"source_type" validate:"required,oneof=csv excel sheets"`
	Path        string `json:"path,omitempty" validate:"required_unless=SourceType sheets"`
	Sheet       string `json:"sheet,omitempty"`
	Spreadsheet string `json:"spreadsheet,omitempty" validate:"required_if=SourceType sheets"`
}

// Bind implements render.Binder.
func (r *StartRunRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

// ExportRequest is the body of POST /api/runs/current/export.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=xlsx csv"`
}

// Bind implements render.Binder.
func (r *ExportRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

// Routes returns a chi router for the run endpoints.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/upload", h.Upload)
	r.Post("/runs", h.StartRun)
	r.Get("/runs/current", h.RunStatus)
	r.Post("/runs/current/cancel", h.CancelRun)
	r.Get("/runs/current/report", h.RunReport)
	r.Post("/runs/current/export", h.ExportRun)

	return r
}

// Upload handles POST /api/upload. It stores a spreadsheet for a later run.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		render.Render(w, r, apierrors.ErrValidation("file", "a file upload is required"))
		return
	}
	defer file.Close()

	path, err := h.service.SaveUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("upload failed",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	h.logger.Info("file uploaded",
		slog.String("filename", header.Filename),
		slog.String("path", path))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"path": path})
}

// StartRun handles POST /api/runs.
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	data := &StartRunRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, bindError(err))
		return
	}

	if err := h.service.Start(data); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			render.Render(w, r, apierrors.ErrRunInFlight)
			return
		}
		h.logger.Error("failed to start run", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": string(domain.RunStatusRunning)})
}

// RunStatus handles GET /api/runs/current.
func (h *Handler) RunStatus(w http.ResponseWriter, r *http.Request) {
	status, runID := h.service.Status()
	resp := map[string]any{"status": string(status)}
	if runID != "" {
		resp["run_id"] = runID
	}
	render.JSON(w, r, resp)
}

// CancelRun handles POST /api/runs/current/cancel.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	if !h.service.Cancel() {
		render.Render(w, r, apierrors.ErrNoRun)
		return
	}
	render.JSON(w, r, map[string]string{"status": "cancelling"})
}

// RunReport handles GET /api/runs/current/report. Cancelled runs return
// their partial report.
func (h *Handler) RunReport(w http.ResponseWriter, r *http.Request) {
	rep := h.service.Report()
	if rep == nil {
		render.Render(w, r, apierrors.ErrNoRun)
		return
	}
	render.JSON(w, r, rep)
}

// ExportRun handles POST /api/runs/current/export.
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	data := &ExportRequest{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, bindError(err))
		return
	}

	path, err := h.service.Export(data.Format)
	if err != nil {
		if h.service.Report() == nil {
			render.Render(w, r, apierrors.ErrNoRun)
			return
		}
		h.logger.Error("export failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ExportError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"path": path})
}

// ServeWS handles GET /ws by upgrading the connection and attaching it to
// the progress hub.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	websocket.ServeWS(h.hub, conn)
}

// bindError converts request binding failures into API errors, flattening
// validator field errors when present.
func bindError(err error) *apierrors.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apierrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apierrors.FieldError{
				Field:   fe.Field(),
				Message: fe.Tag(),
			})
		}
		return apierrors.NewValidationErrors(fields)
	}
	return apierrors.InvalidRequestWithError(err)
}

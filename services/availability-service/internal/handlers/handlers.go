package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/schedule"
)

type Handler struct {
	svc    *schedule.Service
	logger *slog.Logger
}

func New(svc *schedule.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the API on mux. limit wraps the endpoints that acquire slots.
func (h *Handler) Register(mux *http.ServeMux, limit httpx.Middleware) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	mux.HandleFunc("GET /api/v1/providers/{providerID}/schedule", h.GetSchedule)
	mux.HandleFunc("POST /api/v1/providers/{providerID}/working-days", h.AddWorkingDay)
	mux.HandleFunc("PUT /api/v1/providers/{providerID}/working-days/{day}", h.UpdateWorkingDay)
	mux.HandleFunc("DELETE /api/v1/providers/{providerID}/working-days/{day}", h.RemoveWorkingDay)

	mux.HandleFunc("POST /api/v1/providers/{providerID}/slots", h.CreateSlot)
	mux.HandleFunc("POST /api/v1/providers/{providerID}/slots/generate", h.GenerateSlots)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/slots", h.ListSlots)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/slots/upcoming", h.UpcomingSlots)
	mux.HandleFunc("GET /api/v1/providers/{providerID}/slots/{slotID}", h.GetSlot)

	mux.Handle("POST /api/v1/slots/{slotID}/book", limit(http.HandlerFunc(h.BookSlot)))
	mux.HandleFunc("POST /api/v1/slots/{slotID}/release", h.ReleaseSlot)

	mux.Handle("POST /api/v1/bookings", limit(http.HandlerFunc(h.PlaceBooking)))
	mux.HandleFunc("GET /api/v1/bookings/{bookingID}", h.GetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{bookingID}/status", h.TransitionBooking)
	mux.HandleFunc("POST /api/v1/bookings/{bookingID}/rating", h.RateBooking)
}

type errorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

func statusFor(kind schedule.Kind) int {
	switch kind {
	case schedule.KindNotFound:
		return http.StatusNotFound
	case schedule.KindInvalidInput:
		return http.StatusBadRequest
	case schedule.KindConflict:
		return http.StatusConflict
	case schedule.KindOutsideWorkingHours:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := schedule.AsError(err); ok {
		httpx.WriteJSON(w, statusFor(e.Kind), errorResponse{Error: string(e.Kind), Reason: e.Reason, Message: e.Message})
		return
	}
	h.logger.Error("request failed",
		"err", err,
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
	)
	httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
		Error:   string(schedule.KindInvalidInput),
		Reason:  schedule.ReasonInvalidRequest,
		Message: msg,
	})
}

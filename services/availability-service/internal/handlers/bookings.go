package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/schedule"
)

type bookSlotRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

type placeBookingRequest struct {
	ConsumerID    string `json:"consumer_id"`
	ProviderID    string `json:"provider_id"`
	ServiceTypeID string `json:"service_type_id"`
	TimeSlotID    string `json:"time_slot_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	PriceCents    int64  `json:"price_cents"`
	Currency      string `json:"currency"`
}

type transitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type ratingRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

func (h *Handler) BookSlot(w http.ResponseWriter, r *http.Request) {
	var req bookSlotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	view, err := h.svc.BookTimeSlot(r.Context(), r.PathValue("slotID"), req.DurationMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) ReleaseSlot(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.ReleaseTimeSlot(r.Context(), r.PathValue("slotID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) PlaceBooking(w http.ResponseWriter, r *http.Request) {
	var req placeBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := h.svc.PlaceBooking(r.Context(), schedule.BookingIntent{
		ConsumerID:    req.ConsumerID,
		ProviderID:    req.ProviderID,
		ServiceTypeID: req.ServiceTypeID,
		TimeSlotID:    req.TimeSlotID,
		Date:          date,
		StartMinute:   start,
		EndMinute:     end,
		PriceCents:    req.PriceCents,
		Currency:      req.Currency,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetBooking(r.Context(), r.PathValue("bookingID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	to, ok := model.ParseBookingStatus(req.Status)
	if !ok {
		badRequest(w, "unknown status "+req.Status)
		return
	}
	view, err := h.svc.TransitionBooking(r.Context(), r.PathValue("bookingID"), to, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) RateBooking(w http.ResponseWriter, r *http.Request) {
	var req ratingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	view, err := h.svc.RateBooking(r.Context(), r.PathValue("bookingID"), req.Rating, req.Review)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

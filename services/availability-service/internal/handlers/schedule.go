package handlers

import (
	"net/http"
	"strconv"

	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/model"
)

type workingDayRequest struct {
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type createSlotRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type generateSlotsRequest struct {
	From        string `json:"from"`
	Days        int    `json:"days"`
	SlotMinutes int    `json:"slot_minutes"`
}

func parseWindow(start, end string) (int, int, error) {
	s, err := model.ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := model.ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	return s, e, nil
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetSchedule(r.Context(), r.PathValue("providerID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) AddWorkingDay(w http.ResponseWriter, r *http.Request) {
	var req workingDayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	day, err := model.ParseWeekday(req.DayOfWeek)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := h.svc.AddWorkingDay(r.Context(), r.PathValue("providerID"), day, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) UpdateWorkingDay(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseWeekday(r.PathValue("day"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req workingDayRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	start, end, err := parseWindow(req.StartTime, req.EndTime)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	view, err := h.svc.UpdateWorkingDay(r.Context(), r.PathValue("providerID"), day, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) RemoveWorkingDay(w http.ResponseWriter, r *http.Request) {
	day, err := model.ParseWeekday(r.PathValue("day"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	view, err := h.svc.RemoveWorkingDay(r.Context(), r.PathValue("providerID"), day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) CreateSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
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

	view, err := h.svc.CreateSlot(r.Context(), r.PathValue("providerID"), date, start, end)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) GenerateSlots(w http.ResponseWriter, r *http.Request) {
	var req generateSlotsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	var from model.Date
	if req.From != "" {
		d, err := model.ParseDate(req.From)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		from = d
	}

	views, err := h.svc.GenerateSlots(r.Context(), r.PathValue("providerID"), from, req.Days, req.SlotMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, views)
}

func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	date, err := model.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	availableOnly := false
	if raw := r.URL.Query().Get("available"); raw != "" {
		availableOnly, err = strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "available must be true or false")
			return
		}
	}

	providerID := r.PathValue("providerID")
	var views []model.TimeSlotView
	if availableOnly {
		views, err = h.svc.GetAvailableTimeSlots(r.Context(), providerID, date)
	} else {
		views, err = h.svc.GetTimeSlotsByDate(r.Context(), providerID, date)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) UpcomingSlots(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(w, "days must be an integer")
			return
		}
		days = n
	}

	views, err := h.svc.GetUpcomingAvailableSlots(r.Context(), r.PathValue("providerID"), days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) GetSlot(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetTimeSlot(r.Context(), r.PathValue("providerID"), r.PathValue("slotID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

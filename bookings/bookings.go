// Package bookings lets users reserve a slot for a future time window.
package bookings

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"vditaxi/clock"
	"vditaxi/models"
	"vditaxi/store"
	"vditaxi/utils"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	Store store.Store
	Clock clock.Clock
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := h.Store.ListBookings(r.Context(), utils.GetUserIDFromRequest(r))
	if err != nil {
		log.Printf("[bookings] list: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}
	if list == nil {
		list = []models.Booking{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// validate normalizes req and returns a client-facing message when it
// cannot be booked.
func (h *Handlers) validate(req *models.BookingRequest) string {
	if req.SlotID == "" {
		return "slot_id is required"
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return "Invalid date format"
	}
	today := h.Clock.Now().UTC().Format(dateLayout)
	if req.Date < today {
		return "Date cannot be in the past"
	}
	if _, err := models.ParseClock(req.StartTime); err != nil {
		return "Invalid time format"
	}
	if req.DurationMin == 0 {
		req.DurationMin = models.DefaultBookingMinutes
	}
	if req.DurationMin < 0 || req.DurationMin > 24*60 {
		return "Invalid duration"
	}
	return ""
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.BookingRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if msg := h.validate(&req); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}
	if _, err := h.Store.GetSlot(r.Context(), req.SlotID); errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Slot not found")
		return
	}

	b, err := h.Store.CreateBooking(r.Context(), models.Booking{
		UserID:      utils.GetUserIDFromRequest(r),
		SlotID:      req.SlotID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		DurationMin: req.DurationMin,
		Status:      models.BookingActive,
		CreatedAt:   h.Clock.Now(),
	})
	var conflict *store.BookingConflictError
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusCreated, b)
	case errors.As(err, &conflict):
		utils.RespondWithError(w, http.StatusConflict, fmt.Sprintf("Conflicts with booking at %s", conflict.Existing.StartTime))
	default:
		log.Printf("[bookings] create: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create booking")
	}
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseInt64(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "Booking not found")
		return
	}
	err := h.Store.CancelBooking(r.Context(), utils.GetUserIDFromRequest(r), id)
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true, "id": id})
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Booking not found")
	default:
		log.Printf("[bookings] cancel: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to cancel booking")
	}
}

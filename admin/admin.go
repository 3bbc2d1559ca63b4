// Package admin serves the slot catalogue to administrators.
package admin

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"vditaxi/clock"
	"vditaxi/models"
	"vditaxi/slots"
	"vditaxi/store"
	"vditaxi/utils"
)

type Handlers struct {
	Store store.Store
	Slots *slots.Service
	Clock clock.Clock
}

// SlotUpdate leaves nil fields untouched.
type SlotUpdate struct {
	ServiceName    *string  `json:"service_name"`
	Tier           *string  `json:"tier"`
	Category       *string  `json:"category"`
	CategoryAccent *string  `json:"category_accent"`
	MonthlyCost    *float64 `json:"monthly_cost"`
	URL            *string  `json:"url"`
	Login          *string  `json:"login"`
	Password       *string  `json:"password"`
	ChromeProfile  *string  `json:"chrome_profile"`
	IsActive       *bool    `json:"is_active"`
}

func (u SlotUpdate) apply(s *models.SlotRecord) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.ServiceName, u.ServiceName)
	set(&s.Tier, u.Tier)
	set(&s.Category, u.Category)
	set(&s.CategoryAccent, u.CategoryAccent)
	set(&s.URL, u.URL)
	set(&s.Login, u.Login)
	set(&s.Password, u.Password)
	set(&s.ChromeProfile, u.ChromeProfile)
	if u.MonthlyCost != nil {
		s.MonthlyCost = *u.MonthlyCost
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
}

// ListSlots returns every slot, disabled ones and credentials included.
func (h *Handlers) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := h.Store.ListSlots(r.Context(), true)
	if err != nil {
		log.Printf("[admin] list slots: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

func (h *Handlers) CreateSlot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	rec := models.SlotRecord{Category: "General", CategoryAccent: "#3b82f6", IsActive: true}
	if !utils.DecodeJSON(w, r, &rec) {
		return
	}
	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" || strings.TrimSpace(rec.ServiceName) == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "id and service_name are required")
		return
	}
	if _, err := h.Store.GetSlot(r.Context(), rec.ID); err == nil {
		utils.RespondWithError(w, http.StatusConflict, "Slot with id '"+rec.ID+"' already exists")
		return
	}
	if err := h.Store.UpsertSlot(r.Context(), rec); err != nil {
		log.Printf("[admin] create slot %s: %v", rec.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create slot")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, rec)
}

// UpdateSlot patches a slot. Disabling an occupied slot ends its session.
func (h *Handlers) UpdateSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec, err := h.Store.GetSlot(r.Context(), ps.ByName("id"))
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Slot not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load slot")
		return
	}
	var upd SlotUpdate
	if !utils.DecodeJSON(w, r, &upd) {
		return
	}
	upd.apply(&rec)
	if err := h.Store.UpsertSlot(r.Context(), rec); err != nil {
		log.Printf("[admin] update slot %s: %v", rec.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update slot")
		return
	}

	if !rec.IsActive {
		_, err := h.Slots.ForceRelease(r.Context(), rec.ID, models.EndDisabled)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.Printf("[admin] end session on disabled slot %s: %v", rec.ID, err)
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, rec)
}

// Package templates stores named groups of slots that can be launched
// together in one request.
package templates

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"vditaxi/middleware"
	"vditaxi/models"
	"vditaxi/slots"
	"vditaxi/store"
	"vditaxi/utils"
)

const defaultIcon = "🔍"

type Handlers struct {
	Store store.Store
	Slots *slots.Service
}

func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	list, err := h.Store.ListTemplates(r.Context())
	if err != nil {
		log.Printf("[templates] list: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

func decodeTemplate(w http.ResponseWriter, r *http.Request) (models.TemplateRequest, bool) {
	var req models.TemplateRequest
	if !utils.DecodeJSON(w, r, &req) {
		return req, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Name is required")
		return req, false
	}
	if len(req.SlotIDs) == 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Pick at least one slot")
		return req, false
	}
	if req.Icon == "" {
		req.Icon = defaultIcon
	}
	return req, true
}

func (h *Handlers) CreateTemplate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	t, err := h.Store.CreateTemplate(r.Context(), models.Template{
		Name:      req.Name,
		Icon:      req.Icon,
		SlotIDs:   req.SlotIDs,
		URL:       req.URL,
		CreatedBy: utils.GetUserIDFromRequest(r),
	})
	if err != nil {
		log.Printf("[templates] create: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, t)
}

func (h *Handlers) loadTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (models.Template, bool) {
	id, ok := utils.ParseInt64(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "Template not found")
		return models.Template{}, false
	}
	t, err := h.Store.GetTemplate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Template not found")
		return models.Template{}, false
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load template")
		return models.Template{}, false
	}
	return t, true
}

func (h *Handlers) UpdateTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, ok := h.loadTemplate(w, r, ps)
	if !ok {
		return
	}
	req, ok := decodeTemplate(w, r)
	if !ok {
		return
	}
	t.Name, t.Icon, t.SlotIDs, t.URL = req.Name, req.Icon, req.SlotIDs, req.URL
	if err := h.Store.UpdateTemplate(r.Context(), t); err != nil {
		log.Printf("[templates] update %d: %v", t.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, t)
}

func (h *Handlers) DeleteTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, ok := h.loadTemplate(w, r, ps)
	if !ok {
		return
	}
	if err := h.Store.DeleteTemplate(r.Context(), t.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
}

// LaunchTemplate occupies every free slot of the template and reports
// the ones someone else holds. Unknown slots are skipped.
func (h *Handlers) LaunchTemplate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	t, ok := h.loadTemplate(w, r, ps)
	if !ok {
		return
	}
	user, ok := middleware.CurrentUser(h.Store, w, r)
	if !ok {
		return
	}

	res := models.LaunchResult{TemplateID: t.ID, Sessions: []models.LaunchedSlot{}}
	for _, slotID := range t.SlotIDs {
		occ, err := h.Slots.Occupy(r.Context(), user, slotID)
		var taken *slots.OccupiedError
		switch {
		case err == nil:
			res.Sessions = append(res.Sessions, models.LaunchedSlot{SlotID: slotID, Status: models.LaunchOK, SessionID: occ.SessionID})
		case errors.As(err, &taken):
			res.Sessions = append(res.Sessions, models.LaunchedSlot{SlotID: slotID, Status: models.LaunchOccupied, Occupant: taken.Occupant})
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Printf("[templates] launch %d: occupy %s: %v", t.ID, slotID, err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to launch template")
			return
		}
	}

	if err := h.Store.IncrementTemplateUsage(r.Context(), t.ID); err != nil {
		log.Printf("[templates] usage %d: %v", t.ID, err)
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}

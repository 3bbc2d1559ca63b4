package slots

import (
	"errors"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"vditaxi/middleware"
	"vditaxi/models"
	"vditaxi/store"
	"vditaxi/utils"
)

func (s *Service) ListSlots(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	views, err := s.Views(r.Context())
	if err != nil {
		log.Printf("[slots] list: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, views)
}

func (s *Service) OccupySlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	user, ok := middleware.CurrentUser(s.Store, w, r)
	if !ok {
		return
	}
	res, err := s.Occupy(r.Context(), user, ps.ByName("id"))
	var occupied *OccupiedError
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Slot not found")
	case errors.As(err, &occupied):
		utils.RespondWithError(w, http.StatusConflict, occupied.Error())
	default:
		log.Printf("[slots] occupy: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to occupy slot")
	}
}

func (s *Service) ReleaseSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.Release(r.Context(), utils.GetUserIDFromRequest(r), ps.ByName("id"))
	s.respondRelease(w, res, err)
}

func (s *Service) ForceReleaseSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	res, err := s.ForceRelease(r.Context(), ps.ByName("id"), models.EndAdminForce)
	s.respondRelease(w, res, err)
}

func (s *Service) respondRelease(w http.ResponseWriter, res models.ReleaseResult, err error) {
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, res)
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "No active session for this slot")
	default:
		log.Printf("[slots] release: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to release slot")
	}
}

// GetCredentials hands the service login to the slot's current occupant only.
func (s *Service) GetCredentials(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slot, err := s.Store.GetSlot(r.Context(), ps.ByName("id"))
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Slot not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load slot")
		return
	}
	sess, err := s.Store.ActiveSession(r.Context(), slot.ID)
	if err != nil || sess.UserID != utils.GetUserIDFromRequest(r) {
		utils.RespondWithError(w, http.StatusForbidden, "Only the current occupant can see credentials")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.SlotCredentials{
		SlotID:      slot.ID,
		ServiceName: slot.ServiceName,
		URL:         slot.URL,
		Login:       slot.Login,
		Password:    slot.Password,
	})
}

func (s *Service) JoinQueueHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pos, err := s.JoinQueue(r.Context(), utils.GetUserIDFromRequest(r), ps.ByName("id"))
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, pos)
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Slot not found")
	case errors.Is(err, ErrSlotFree):
		utils.RespondWithError(w, http.StatusBadRequest, "Slot is free, occupy it directly")
	default:
		log.Printf("[slots] join queue: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to join queue")
	}
}

func (s *Service) LeaveQueueHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	err := s.LeaveQueue(r.Context(), utils.GetUserIDFromRequest(r), ps.ByName("id"))
	switch {
	case err == nil:
		utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
	case errors.Is(err, store.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "You are not in the queue")
	default:
		log.Printf("[slots] leave queue: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to leave queue")
	}
}

func (s *Service) QueueInfo(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	slotID := ps.ByName("id")
	n, err := s.Store.QueueSize(r.Context(), slotID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read queue")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, models.QueueInfo{SlotID: slotID, QueueSize: n})
}

package profile

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"vditaxi/middleware"
	"vditaxi/models"
	"vditaxi/store"
	"vditaxi/utils"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func (h *Handlers) summarize(ctx context.Context, s models.SessionRecord) models.SessionSummary {
	name := s.SlotID
	if slot, err := h.Store.GetSlot(ctx, s.SlotID); err == nil {
		name = slot.ServiceName
	}
	return models.SessionSummary{
		ID:          s.ID,
		SlotID:      s.SlotID,
		ServiceName: name,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
		DurationMin: s.DurationMinutes(h.Clock.Now()),
		EndReason:   s.EndReason,
	}
}

// SessionHistory lists the caller's ended sessions, newest first.
func (h *Handlers) SessionHistory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit := utils.QueryInt(r, "limit", defaultHistoryLimit)
	if limit < 1 || limit > maxHistoryLimit {
		utils.RespondWithError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}
	list, err := h.Store.SessionHistory(r.Context(), utils.GetUserIDFromRequest(r), limit)
	if err != nil {
		log.Printf("[profile] history: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	out := make([]models.SessionSummary, 0, len(list))
	for _, s := range list {
		out = append(out, h.summarize(r.Context(), s))
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// SessionSummary serves GET /sessions/:id/summary to the session's
// owner or an admin.
func (h *Handlers) SessionSummary(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	u, ok := middleware.CurrentUser(h.Store, w, r)
	if !ok {
		return
	}
	id, ok := utils.ParseInt64(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	s, err := h.Store.GetSession(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if s.UserID != u.ID && !u.IsAdmin {
		utils.RespondWithError(w, http.StatusForbidden, "No access to this session")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, h.summarize(r.Context(), s))
}

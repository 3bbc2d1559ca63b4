package admin

import (
	"fmt"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"vditaxi/models"
	"vditaxi/utils"
)

// occupied is how long s ran inside [from, now].
func occupied(s models.SessionRecord, from, now time.Time) time.Duration {
	start := s.StartedAt
	if start.Before(from) {
		start = from
	}
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// ListUsers returns every user with the sessions and hours of the last week.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	now := h.Clock.Now()
	from := now.Add(-models.StatsWindow)
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[admin] list users: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	sessions, err := h.Store.SessionsSince(r.Context(), from)
	if err != nil {
		log.Printf("[admin] sessions since %s: %v", from.Format(time.RFC3339), err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load sessions")
		return
	}

	count := make(map[int64]int)
	spent := make(map[int64]time.Duration)
	for _, s := range sessions {
		count[s.UserID]++
		spent[s.UserID] += occupied(s, from, now)
	}
	out := make([]models.UserUsage, 0, len(users))
	for _, u := range users {
		out = append(out, models.UserUsage{
			ID:           u.ID,
			Name:         u.Name,
			Username:     u.Username,
			TelegramID:   u.TelegramID,
			SessionsWeek: count[u.ID],
			HoursWeek:    math.Round(spent[u.ID].Hours()*10) / 10,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// Stats reports weekly utilisation of every active slot.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	now := h.Clock.Now()
	from := now.Add(-models.StatsWindow)
	list, err := h.Store.ListSlots(r.Context(), false)
	if err != nil {
		log.Printf("[admin] stats slots: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list slots")
		return
	}
	sessions, err := h.Store.SessionsSince(r.Context(), from)
	if err != nil {
		log.Printf("[admin] stats sessions: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load sessions")
		return
	}

	busy := make(map[string]time.Duration)
	for _, s := range sessions {
		busy[s.SlotID] += occupied(s, from, now)
	}
	out := make([]models.SlotUsage, 0, len(list))
	for _, slot := range list {
		pct := min(100, int(math.Round(float64(busy[slot.ID])/float64(models.StatsWindow)*100)))
		row := models.SlotUsage{SlotID: slot.ID, ServiceName: slot.ServiceName, Pct: pct}
		if pct > models.BusySlotPct {
			row.Recommendation = fmt.Sprintf("%s: %d%% utilisation, consider adding a slot", slot.ServiceName, pct)
		}
		out = append(out, row)
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// Package profile serves the caller's profile, favorites and session
// history.
package profile

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"vditaxi/clock"
	"vditaxi/middleware"
	"vditaxi/models"
	"vditaxi/store"
	"vditaxi/utils"
)

type Handlers struct {
	Store store.Store
	Clock clock.Clock
}

func (h *Handlers) build(ctx context.Context, u models.User) (models.Profile, error) {
	favs, err := h.Store.Favorites(ctx, u.ID)
	if err != nil {
		return models.Profile{}, err
	}
	if favs == nil {
		favs = []string{}
	}
	return models.Profile{
		ID:           u.ID,
		Name:         u.Name,
		Username:     u.Username,
		TelegramID:   u.TelegramID,
		IsAdmin:      u.IsAdmin,
		IsFirstLogin: u.IsFirstLogin,
		Favorites:    favs,
	}, nil
}

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	u, ok := middleware.CurrentUser(h.Store, w, r)
	if !ok {
		return
	}
	p, err := h.build(r.Context(), u)
	if err != nil {
		log.Printf("[profile] favorites %d: %v", u.ID, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, p)
}

// UpdateProfile applies the fields present in the body. Favorites are
// replaced as a whole.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	u, ok := middleware.CurrentUser(h.Store, w, r)
	if !ok {
		return
	}
	var upd models.ProfileUpdate
	if !utils.DecodeJSON(w, r, &upd) {
		return
	}

	if upd.TelegramID != nil {
		u.TelegramID = strings.TrimSpace(*upd.TelegramID)
		if err := h.Store.UpdateUser(r.Context(), u); err != nil {
			log.Printf("[profile] update user %d: %v", u.ID, err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update profile")
			return
		}
	}
	if upd.Favorites != nil {
		if err := h.Store.SetFavorites(r.Context(), u.ID, dedupe(*upd.Favorites)); err != nil {
			log.Printf("[profile] favorites %d: %v", u.ID, err)
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update favorites")
			return
		}
	}

	p, err := h.build(r.Context(), u)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, p)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Package auth handles login, logout and the current-user endpoint.
// Tokens are stateless; logout only tells the client to drop its copy.
package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/crypto/bcrypt"

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

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req models.LoginRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	user, err := h.Store.UserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Printf("[auth] lookup %q: %v", req.Username, err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := middleware.SignToken(user.ID, user.Username, h.Clock.Now())
	if err != nil {
		log.Printf("[auth] sign token: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	log.Printf("[auth] %s logged in", user.Username)
	utils.RespondWithJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: user})
}

// Logout handles POST /auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"ok": true})
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	user, ok := middleware.CurrentUser(h.Store, w, r)
	if !ok {
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, user)
}

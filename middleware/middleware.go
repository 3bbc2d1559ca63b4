package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"

	"vditaxi/globals"
	"vditaxi/models"
	"vditaxi/store"
	"vditaxi/utils"
)

// JWT claims. The subject is the decimal user id.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// SignToken issues an HS256 token for the user valid for globals.JwtExpire.
func SignToken(userID int64, username string, now time.Time) (string, error) {
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(globals.JwtExpire)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(globals.JwtSecret)
}

// ValidateJWT checks an "Authorization" header value and returns the
// user id it names.
func ValidateJWT(header string) (int64, *Claims, error) {
	if len(header) < 8 || header[:7] != "Bearer " {
		return 0, nil, errors.New("invalid token format")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(header[7:], claims, func(token *jwt.Token) (any, error) {
		return globals.JwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, nil, fmt.Errorf("unauthorized: %w", err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, nil, errors.New("unauthorized: bad subject")
	}
	return id, claims, nil
}

func Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get("Authorization") == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
			return
		}
		userID, _, err := ValidateJWT(r.Header.Get("Authorization"))
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		// Store UserID in context
		ctx := context.WithValue(r.Context(), globals.UserIDKey, userID)
		next(w, r.WithContext(ctx), ps)
	}
}

// RequireAdmin authenticates the request and answers 403 unless the
// user is an administrator.
func RequireAdmin(st store.Store, next httprouter.Handle) httprouter.Handle {
	return Authenticate(func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		u, ok := CurrentUser(st, w, r)
		if !ok {
			return
		}
		if !u.IsAdmin {
			utils.RespondWithError(w, http.StatusForbidden, "Admin only")
			return
		}
		next(w, r, ps)
	})
}

// CurrentUser loads the authenticated user, answering 401 when the
// token names a user that no longer exists.
func CurrentUser(st store.Store, w http.ResponseWriter, r *http.Request) (models.User, bool) {
	u, err := st.UserByID(r.Context(), utils.GetUserIDFromRequest(r))
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithError(w, http.StatusUnauthorized, "User not found")
		return models.User{}, false
	}
	if err != nil {
		log.Printf("load user: %v", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to load user")
		return models.User{}, false
	}
	return u, true
}

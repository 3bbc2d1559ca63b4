package models

import "time"

type User struct {
	ID           int64     `json:"id" bson:"id"`
	Name         string    `json:"name" bson:"name"`
	Username     string    `json:"username" bson:"username"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	TelegramID   string    `json:"telegram_id,omitempty" bson:"telegram_id,omitempty"`
	IsAdmin      bool      `json:"is_admin" bson:"is_admin"`
	IsFirstLogin bool      `json:"is_first_login" bson:"is_first_login"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type Profile struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Username     string   `json:"username"`
	TelegramID   string   `json:"telegram_id,omitempty"`
	IsAdmin      bool     `json:"is_admin"`
	IsFirstLogin bool     `json:"is_first_login"`
	Favorites    []string `json:"favorites"`
}

// ProfileUpdate leaves a field untouched when it is nil.
type ProfileUpdate struct {
	TelegramID *string   `json:"telegram_id,omitempty"`
	Favorites  *[]string `json:"favorites,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

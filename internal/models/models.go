package models

import (
	"database/sql"
	"time"
)

// GameStatus only ever moves forward: LOBBY -> IN_GAME -> FINISHED.
type GameStatus int

const (
	StatusLobby GameStatus = iota
	StatusInGame
	StatusFinished
)

type GameType int

const (
	GameTypeSingle GameType = iota
	GameTypeMulti
	GameTypeTeam
)

type UserType string

const (
	UserTypeGuest      UserType = "GUEST"
	UserTypeRegistered UserType = "REGISTERED"
)

// Game is the source-of-truth row driving lifecycle transitions.
// player_count and finish_count are only mutated under a row lock.
type Game struct {
	ID          int64          `db:"id" json:"id"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartAt     sql.NullTime   `db:"start_at" json:"start_at,omitempty"`
	EndAt       sql.NullTime   `db:"end_at" json:"end_at,omitempty"`
	Status      GameStatus     `db:"status" json:"status"`
	InviteToken sql.NullString `db:"invite_token" json:"invite_token,omitempty"`
	GameType    GameType       `db:"game_type" json:"game_type"`
	PlayerCount int            `db:"player_count" json:"player_count"`
	FinishCount int            `db:"finish_count" json:"finish_count"`
}

// User ids are namespaced: "<provider>-<provider-uid>", e.g. "google-1234".
// Guests never get a row; their ids use the "guest-" prefix.
type User struct {
	ID           string         `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	RegisteredAt time.Time      `db:"registered_at" json:"registered_at"`
	RefreshToken sql.NullString `db:"refresh_token" json:"-"`
}

// GameResult is written once per finishing registered user.
type GameResult struct {
	GameID     int64     `db:"game_id" json:"game_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Rank       int       `db:"rank" json:"rank"`
	WPMRaw     float64   `db:"wpm_raw" json:"wpm_raw"`
	WPMCorrect float64   `db:"wpm_correct" json:"wpm_correct"`
	Accuracy   float64   `db:"accuracy" json:"accuracy"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
}

// LobbyUserInfo is the per-user value in the lobby cache.
type LobbyUserInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GameUserInfo is the per-user value in the game cache; finish stats are
// merged in as players report them.
type GameUserInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Rank       int        `json:"rank,omitempty"`
	WPM        float64    `json:"wpm,omitempty"`
	WPMRaw     float64    `json:"wpm_raw,omitempty"`
	Acc        float64    `json:"acc,omitempty"`
}

func GameUserFromLobby(u LobbyUserInfo) GameUserInfo {
	return GameUserInfo{ID: u.ID, Name: u.Name}
}

package models

// Events carried on client websocket frames and broker messages.
const (
	EventPing      = "PING"
	EventPong      = "PONG"
	EventReconnect = "RECONNECT"

	EventInit       = "INIT"
	EventUserJoined = "USER_JOINED"
	EventUserLeft   = "USER_LEFT"
	EventGetToken   = "GET_TOKEN"
	EventGameStart  = "GAME_START"

	// KEY_STOKE spelling is part of the client protocol.
	EventKeyStroke = "KEY_STOKE"
	EventStart     = "START"
)

// WSMessage is the JSON text frame exchanged with clients on both the lobby
// and the game sockets. Unused fields are omitted per event.
type WSMessage struct {
	Event         string `json:"event"`
	GameID        int64  `json:"game_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	GuestTokenKey string `json:"guest_token_key,omitempty"`
	WordIndex     *int   `json:"word_index,omitempty"`
	CharIndex     *int   `json:"char_index,omitempty"`
}

// Broker message bodies (JSON).

type LobbyNotifyMsg struct {
	NotifyType string `json:"notify_type"`
	GameID     int64  `json:"game_id"`
	UserID     string `json:"user_id,omitempty"`
}

// LobbyCountdownMsg is a trigger telling the server when to start the game.
type LobbyCountdownMsg struct {
	GameID int64 `json:"game_id"`
}

type GameStartMsg struct {
	GameID int64 `json:"game_id"`
}

type GameCleanupMsg struct {
	GameID int64 `json:"game_id"`
}

type KeystrokeMsg struct {
	GameID    int64  `json:"game_id"`
	UserID    string `json:"user_id"`
	WordIndex int    `json:"word_index"`
	CharIndex int    `json:"char_index"`
}

// KeystrokeSourceHeader tags keystroke publishes with the producing instance
// so consumers can filter self-echo if they want to.
const KeystrokeSourceHeader = "source"

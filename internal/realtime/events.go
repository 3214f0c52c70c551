package realtime

import (
	"encoding/json"

	"quiz-battle-client/internal/domain"
)

// Event names are the wire contract with the hub.
const (
	eventCreateGame     = "createGame"
	eventJoinGame       = "joinGame"
	eventUpdateScore    = "updateScore"
	eventPlayerFinished = "playerFinished"
	eventRejoinGame     = "rejoinGame"

	eventCreatedGame         = "createdGame"
	eventJoinedGame          = "joinedGame"
	eventGameStarted         = "gameStarted"
	eventOpponentScoreUpdate = "opponentScoreUpdate"
	eventOpponentFinished    = "opponentFinished"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type createGamePayload struct {
	GameID string `json:"gameId"`
}

type joinGamePayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type updateScorePayload struct {
	GameID       string `json:"gameId"`
	PlayerID     string `json:"playerId"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
}

type playerFinishedPayload struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type rejoinGamePayload struct {
	GameID string `json:"gameId"`
}

type createdGamePayload struct {
	GameID string `json:"gameId"`
	Status string `json:"status"`
}

type joinedGamePayload struct {
	GameID  string   `json:"gameId"`
	Status  string   `json:"status"`
	Players []string `json:"players"`
}

type gameStartedPayload struct {
	QuizID string `json:"quizId"`
}

type opponentScoreUpdatePayload struct {
	Score        int `json:"score"`
	CorrectCount int `json:"correctCount"`
}

// statusFromWire maps a hub status string onto the session lifecycle,
// falling back when the hub omits or mangles the field.
func statusFromWire(wire string, fallback domain.GameStatus) domain.GameStatus {
	switch wire {
	case string(domain.StatusIdle):
		return domain.StatusIdle
	case string(domain.StatusWaiting):
		return domain.StatusWaiting
	case string(domain.StatusPlaying):
		return domain.StatusPlaying
	default:
		return fallback
	}
}

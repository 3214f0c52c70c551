package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"quiz-battle-client/internal/domain"
)

// StateStore abstracts the durable client state store.
type StateStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

const sessionKey = "session:game"

const gameCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
const gameCodeLength = 6

// Channel coordinates two players into a shared game over a websocket hub
// and relays live score and finish events. The in-memory GameSession is the
// single authoritative copy; every mutation goes through mutate, which
// persists to the durable store so a restarted client reconstructs the same
// session before the transport reconnects.
type Channel struct {
	hubURL string
	dialer *websocket.Dialer
	store  StateStore
	rnd    *rand.Rand

	mu          sync.Mutex
	session     domain.GameSession
	subscribers map[chan domain.GameSession]struct{}

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewChannel(hubURL string, store StateStore) *Channel {
	return &Channel{
		hubURL:      hubURL,
		dialer:      websocket.DefaultDialer,
		store:       store,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		session:     domain.GameSession{Status: domain.StatusIdle},
		subscribers: make(map[chan domain.GameSession]struct{}),
	}
}

// Restore loads any persisted session so a reload rejoins mid-game instead of
// starting over. A missing or corrupt record leaves the session idle.
func (c *Channel) Restore(ctx context.Context) error {
	var session domain.GameSession
	ok, err := c.store.Get(ctx, sessionKey, &session)
	if err != nil {
		return err
	}
	if ok && session.Status != domain.StatusIdle {
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
	}
	return nil
}

// Run maintains the hub connection until ctx is canceled, reconnecting with
// backoff. A disconnect never resets game state; after each reconnect a
// non-idle session emits a best-effort rejoin so the hub can re-associate the
// new connection with the existing game.
func (c *Channel) Run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.hubURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("hub", c.hubURL).Dur("backoff", backoff).Msg("hub dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 500 * time.Millisecond
		c.setConn(conn)
		log.Info().Str("hub", c.hubURL).Msg("hub connected")

		c.rejoinIfNeeded()
		c.readLoop(ctx, conn)

		c.setConn(nil)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Msg("hub connection lost, reconnecting")
	}
}

// CreateGame mints a short shareable code, announces it to the hub, and
// returns the code. The session becomes waiting when the hub acknowledges
// with createdGame.
func (c *Channel) CreateGame() (string, error) {
	code := c.newGameCode()
	c.mutate(func(s *domain.GameSession) {
		s.GameID = code
		s.Status = domain.StatusIdle
		s.Players = nil
		s.QuizID = ""
		s.OpponentScore = 0
		s.OpponentCorrectCount = 0
		s.OpponentFinished = false
	})
	if err := c.publish(eventCreateGame, createGamePayload{GameID: code}); err != nil {
		return "", err
	}
	return code, nil
}

// JoinGame asks the hub to add the player to an existing game. The session
// adopts the roster and status from the joinedGame acknowledgment.
func (c *Channel) JoinGame(gameID, playerID string) error {
	c.mutate(func(s *domain.GameSession) {
		s.GameID = gameID
		s.OpponentScore = 0
		s.OpponentCorrectCount = 0
		s.OpponentFinished = false
	})
	return c.publish(eventJoinGame, joinGamePayload{GameID: gameID, PlayerID: playerID})
}

// SubmitScore publishes the player's score. Fire-and-forget: transport
// failure degrades multiplayer sync but is never an error for the caller.
func (c *Channel) SubmitScore(gameID, playerID string, score, correctCount int) {
	if err := c.publish(eventUpdateScore, updateScorePayload{
		GameID:       gameID,
		PlayerID:     playerID,
		Score:        score,
		CorrectCount: correctCount,
	}); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("score publish dropped")
	}
}

// FinishGame publishes that the player completed the quiz. Fire-and-forget.
func (c *Channel) FinishGame(gameID, playerID string) {
	if err := c.publish(eventPlayerFinished, playerFinishedPayload{GameID: gameID, PlayerID: playerID}); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("finish publish dropped")
	}
}

// ResetGame clears the session and its durable record. This is the only path
// back to idle; disconnects never reset game state.
func (c *Channel) ResetGame(ctx context.Context) {
	c.mutate(func(s *domain.GameSession) {
		*s = domain.GameSession{Status: domain.StatusIdle}
	})
	if err := c.store.Delete(ctx, sessionKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored session")
	}
}

// Session returns a snapshot of the current game session.
func (c *Channel) Session() domain.GameSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel receiving session snapshots after every
// mutation, plus a cancel function the caller must invoke to avoid leaks.
func (c *Channel) Subscribe() (<-chan domain.GameSession, func()) {
	ch := make(chan domain.GameSession, 8)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	initial := c.snapshotLocked()
	c.mu.Unlock()

	ch <- initial

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("hub read failed")
			}
			return
		}
		c.handleEvent(msg)
	}
}

func (c *Channel) handleEvent(msg inboundMessage) {
	switch msg.Type {
	case eventCreatedGame:
		var payload createdGamePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Debug().Err(err).Msg("bad createdGame payload")
			return
		}
		c.mutate(func(s *domain.GameSession) {
			if payload.GameID != "" {
				s.GameID = payload.GameID
			}
			s.Status = statusFromWire(payload.Status, domain.StatusWaiting)
		})
	case eventJoinedGame:
		var payload joinedGamePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Debug().Err(err).Msg("bad joinedGame payload")
			return
		}
		c.mutate(func(s *domain.GameSession) {
			if payload.GameID != "" {
				s.GameID = payload.GameID
			}
			s.Status = statusFromWire(payload.Status, domain.StatusWaiting)
			s.Players = payload.Players
		})
	case eventGameStarted:
		var payload gameStartedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Debug().Err(err).Msg("bad gameStarted payload")
			return
		}
		c.mutate(func(s *domain.GameSession) {
			s.Status = domain.StatusPlaying
			s.QuizID = payload.QuizID
		})
	case eventOpponentScoreUpdate:
		var payload opponentScoreUpdatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Debug().Err(err).Msg("bad opponentScoreUpdate payload")
			return
		}
		// Last delivered wins: the transport may reorder across a reconnect,
		// and the wire event carries no sequence number.
		c.mutate(func(s *domain.GameSession) {
			s.OpponentScore = payload.Score
			s.OpponentCorrectCount = payload.CorrectCount
		})
	case eventOpponentFinished:
		// One-way latch: never cleared for the session's lifetime.
		c.mutate(func(s *domain.GameSession) {
			s.OpponentFinished = true
		})
	default:
		log.Debug().Str("type", msg.Type).Msg("ignoring unknown hub event")
	}
}

// mutate applies fn under the lock, broadcasts the new snapshot to
// subscribers, and persists it. The durable copy is written after every
// mutation so it never drifts from the in-memory session.
func (c *Channel) mutate(fn func(*domain.GameSession)) {
	c.mu.Lock()
	fn(&c.session)
	snapshot := c.snapshotLocked()
	for ch := range c.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot so a slow subscriber never blocks events.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	c.mu.Unlock()

	if err := c.store.Put(context.Background(), sessionKey, snapshot); err != nil {
		log.Warn().Err(err).Msg("failed to persist game session")
	}
}

func (c *Channel) snapshotLocked() domain.GameSession {
	snapshot := c.session
	snapshot.Players = append([]string(nil), c.session.Players...)
	return snapshot
}

func (c *Channel) rejoinIfNeeded() {
	session := c.Session()
	if session.Status == domain.StatusIdle || session.GameID == "" {
		return
	}
	// Best effort: the hub not honoring the rejoin is not a client error.
	if err := c.publish(eventRejoinGame, rejoinGamePayload{GameID: session.GameID}); err != nil {
		log.Warn().Err(err).Str("game_id", session.GameID).Msg("rejoin signal dropped")
		return
	}
	log.Info().Str("game_id", session.GameID).Msg("rejoin signal sent")
}

func (c *Channel) publish(eventType string, payload any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrTransport)
	}
	if err := c.conn.WriteJSON(outboundMessage{Type: eventType, Payload: payload}); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

// Connected reports whether a hub connection is currently established.
func (c *Channel) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

func (c *Channel) newGameCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	code := make([]byte, gameCodeLength)
	for i := range code {
		code[i] = gameCodeAlphabet[c.rnd.Intn(len(gameCodeAlphabet))]
	}
	return string(code)
}

package domain

import "time"

// User is the authenticated player identity carried inside CredentialState.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// CredentialState holds the session credential pair. It is owned exclusively
// by the gateway: only login, refresh-success, and logout mutate it.
type CredentialState struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// GameStatus is the lifecycle phase of a multiplayer game session.
type GameStatus string

const (
	StatusIdle    GameStatus = "idle"
	StatusWaiting GameStatus = "waiting"
	StatusPlaying GameStatus = "playing"
)

// GameSession is the local view of a two-player game. OpponentFinished is a
// latch: once true it stays true until the session is reset.
type GameSession struct {
	GameID               string     `json:"gameId"`
	Status               GameStatus `json:"status"`
	Players              []string   `json:"players"`
	QuizID               string     `json:"quizId,omitempty"`
	OpponentScore        int        `json:"opponentScore"`
	OpponentCorrectCount int        `json:"opponentCorrectCount"`
	OpponentFinished     bool       `json:"opponentFinished"`
}

// Attempt identifies one playthrough of one quiz. AttemptToken is a
// capability credential independent of the user's session credential and must
// accompany every answer-submission and finish call.
type Attempt struct {
	AttemptID    string    `json:"attemptId"`
	AttemptToken string    `json:"attemptToken"`
	QuizID       string    `json:"quizId"`
	StartedAt    time.Time `json:"startedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// QuestionState is the per-question answer lifecycle.
type QuestionState string

const (
	QuestionUnanswered QuestionState = "unanswered"
	QuestionSelected   QuestionState = "selected"
	QuestionSubmitting QuestionState = "submitting"
	QuestionSubmitted  QuestionState = "submitted" // terminal
)

// QuestionProgress tracks one question within an attempt. SelectedChoice is a
// zero-based index into the question's choices, -1 when nothing is selected.
type QuestionProgress struct {
	QuestionID     string        `json:"questionId"`
	SelectedChoice int           `json:"selectedChoice"`
	State          QuestionState `json:"state"`
	TimeLeft       int           `json:"timeLeft"`
	Correct        bool          `json:"correct"`
}

// Submitted reports whether the question reached its terminal state.
func (p QuestionProgress) Submitted() bool {
	return p.State == QuestionSubmitted
}

// AnswerSubmission is the payload for one answer-submission call. The
// idempotency key is minted fresh per submission attempt so a retried network
// call is recognized server-side as the same logical submission.
type AnswerSubmission struct {
	QuestionID       string `json:"questionId"`
	SelectedChoiceID string `json:"selectedChoiceId"`
	IdempotencyKey   string `json:"idempotencyKey"`
}

// AnswerResult is the server's verdict on a submission. CurrentScore is
// authoritative; clients never compute score increments locally.
type AnswerResult struct {
	IsCorrect    bool `json:"isCorrect"`
	CurrentScore int  `json:"currentScore"`
}

// Choice is one selectable answer for a question.
type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a multiple-choice question.
type Question struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Choices []Choice `json:"choices"`
}

// Quiz is a collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// RecordedAnswer is one answer the server already has on record for an
// attempt, used to hydrate an interrupted attempt at load time.
type RecordedAnswer struct {
	QuestionID       string `json:"questionId"`
	SelectedChoiceID string `json:"selectedChoiceId"`
	IsCorrect        bool   `json:"isCorrect"`
}

// AttemptResult is the server-side record of an attempt.
type AttemptResult struct {
	Answers []RecordedAnswer `json:"answers"`
	Score   int              `json:"score"`
}

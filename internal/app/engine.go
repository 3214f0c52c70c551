package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-battle-client/internal/domain"
)

// QuizAPI is the quiz-content collaborator surface the engine needs.
type QuizAPI interface {
	GetQuizByID(ctx context.Context, quizID string) (domain.Quiz, error)
	StartAttempt(ctx context.Context, quizID string) (domain.Attempt, error)
	SubmitAnswer(ctx context.Context, attempt domain.Attempt, submission domain.AnswerSubmission) (domain.AnswerResult, error)
	FinishAttempt(ctx context.Context, attempt domain.Attempt) error
	GetResult(ctx context.Context, attemptID string) (domain.AttemptResult, error)
}

// ScorePublisher bridges the engine to the realtime session channel in
// multiplayer mode. Both calls are fire-and-forget: the engine never waits
// for them and they never fail the solo path.
type ScorePublisher interface {
	SubmitScore(gameID, playerID string, score, correctCount int)
	FinishGame(gameID, playerID string)
}

// StateStore abstracts the durable client state store.
type StateStore interface {
	Put(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string, dest any) (bool, error)
	Delete(ctx context.Context, key string) error
}

const attemptKey = "attempt:current"

const defaultQuestionTime = 60 * time.Second

// Snapshot is an observer's view of the engine state.
type Snapshot struct {
	QuizID           string
	AttemptID        string
	CurrentIndex     int
	Progress         []domain.QuestionProgress
	Score            int
	CorrectCount     int
	Finished         bool
	AwaitingOpponent bool
}

// Engine drives one question at a time through selection, timed submission,
// and progression. It owns the per-question countdown, the answer state
// machine, and the idempotent submission logic; in multiplayer mode it
// publishes score and finish events onto the session channel as side effects.
type Engine struct {
	api          QuizAPI
	store        StateStore
	clock        clockwork.Clock
	questionTime time.Duration

	publisher ScorePublisher
	gameID    string
	playerID  string

	mu           sync.Mutex
	quiz         domain.Quiz
	attempt      domain.Attempt
	progress     []domain.QuestionProgress
	current      int
	score        int
	correctCount int
	finished     bool
	awaitingOpp  bool
	// submitting is the synchronous in-flight flag closing the race between
	// two near-simultaneous submit triggers (a click and the timer firing).
	submitting bool
	// timerGen invalidates countdown goroutines from earlier questions.
	timerGen    int
	subscribers map[chan Snapshot]struct{}
}

// EngineOption configures optional engine behavior.
type EngineOption func(*Engine)

// WithClock injects a clock; tests use clockwork.NewFakeClock.
func WithClock(clock clockwork.Clock) EngineOption {
	return func(e *Engine) { e.clock = clock }
}

// WithQuestionTime overrides the per-question countdown duration.
func WithQuestionTime(d time.Duration) EngineOption {
	return func(e *Engine) { e.questionTime = d }
}

// WithPublisher binds the engine to a game for multiplayer score relay.
func WithPublisher(publisher ScorePublisher, gameID, playerID string) EngineOption {
	return func(e *Engine) {
		e.publisher = publisher
		e.gameID = gameID
		e.playerID = playerID
	}
}

func NewEngine(api QuizAPI, store StateStore, opts ...EngineOption) *Engine {
	e := &Engine{
		api:          api,
		store:        store,
		clock:        clockwork.NewRealClock(),
		questionTime: defaultQuestionTime,
		subscribers:  make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start loads the quiz, resumes a persisted in-progress attempt when one
// exists for it (hydrating answers the server already has on record), or
// starts a fresh attempt, then begins the countdown on the first open
// question.
func (e *Engine) Start(ctx context.Context, quizID string) error {
	quiz, err := e.api.GetQuizByID(ctx, quizID)
	if err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz %s has no questions", domain.ErrValidation, quizID)
	}

	attempt, resumed, err := e.loadOrStartAttempt(ctx, quizID)
	if err != nil {
		return err
	}

	progress := make([]domain.QuestionProgress, len(quiz.Questions))
	for i, q := range quiz.Questions {
		progress[i] = domain.QuestionProgress{
			QuestionID:     q.ID,
			SelectedChoice: -1,
			State:          domain.QuestionUnanswered,
			TimeLeft:       int(e.questionTime / time.Second),
		}
	}

	score, correctCount := 0, 0
	if resumed {
		result, err := e.api.GetResult(ctx, attempt.AttemptID)
		if err != nil {
			return err
		}
		score = result.Score
		recorded := make(map[string]domain.RecordedAnswer, len(result.Answers))
		for _, answer := range result.Answers {
			recorded[answer.QuestionID] = answer
		}
		for i, q := range quiz.Questions {
			answer, ok := recorded[q.ID]
			if !ok {
				continue
			}
			progress[i].State = domain.QuestionSubmitted
			progress[i].SelectedChoice = choiceIndex(q, answer.SelectedChoiceID)
			progress[i].Correct = answer.IsCorrect
			if answer.IsCorrect {
				correctCount++
			}
		}
	}

	e.mu.Lock()
	e.quiz = quiz
	e.attempt = attempt
	e.progress = progress
	e.score = score
	e.correctCount = correctCount
	e.finished = false
	e.awaitingOpp = false
	e.current = e.nextOpenLocked(0)
	allDone := e.current >= len(progress)
	if !allDone {
		e.startCountdownLocked(ctx)
	}
	e.broadcastLocked()
	e.mu.Unlock()

	if allDone {
		return e.finalize(ctx)
	}
	return nil
}

func (e *Engine) loadOrStartAttempt(ctx context.Context, quizID string) (domain.Attempt, bool, error) {
	var persisted domain.Attempt
	ok, err := e.store.Get(ctx, attemptKey, &persisted)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	if ok && persisted.QuizID == quizID && (persisted.ExpiresAt.IsZero() || persisted.ExpiresAt.After(e.clock.Now())) {
		log.Info().Str("attempt_id", persisted.AttemptID).Str("quiz_id", quizID).Msg("resuming in-progress attempt")
		return persisted, true, nil
	}

	attempt, err := e.api.StartAttempt(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, false, err
	}
	if err := e.store.Put(ctx, attemptKey, attempt); err != nil {
		log.Warn().Err(err).Msg("failed to persist attempt")
	}
	return attempt, false, nil
}

// HandleAnswer records a choice selection for the current question. No
// network call happens here; submission is a separate step.
func (e *Engine) HandleAnswer(choiceIndex int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return domain.ErrAttemptFinished
	}
	p := &e.progress[e.current]
	if p.Submitted() || p.State == domain.QuestionSubmitting {
		return domain.ErrSubmissionConflict
	}
	question := e.quiz.Questions[e.current]
	if choiceIndex < 0 || choiceIndex >= len(question.Choices) {
		return fmt.Errorf("%w: choice %d out of range", domain.ErrValidation, choiceIndex)
	}
	p.SelectedChoice = choiceIndex
	p.State = domain.QuestionSelected
	e.broadcastLocked()
	return nil
}

// SubmitCurrent submits the selected choice for the current question. It is
// reentrant-guarded: a second invocation while one is in flight, or for a
// question already submitted, is a no-op. Each invocation mints a fresh
// idempotency key. On success the server's score is adopted verbatim and the
// engine advances; on failure the question stays retryable.
func (e *Engine) SubmitCurrent(ctx context.Context) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return domain.ErrAttemptFinished
	}
	index := e.current
	p := &e.progress[index]
	if p.Submitted() || e.submitting {
		e.mu.Unlock()
		return nil
	}
	if p.SelectedChoice < 0 {
		e.mu.Unlock()
		return fmt.Errorf("%w: no choice selected", domain.ErrValidation)
	}
	e.submitting = true
	question := e.quiz.Questions[index]
	submission := domain.AnswerSubmission{
		QuestionID:       question.ID,
		SelectedChoiceID: question.Choices[p.SelectedChoice].ID,
		IdempotencyKey:   uuid.NewString(),
	}
	attempt := e.attempt

	var result domain.AnswerResult
	err := Mutation(&p.State, domain.QuestionSubmitting, func() (domain.QuestionState, error) {
		e.mu.Unlock()
		res, err := e.api.SubmitAnswer(ctx, attempt, submission)
		e.mu.Lock()
		if err != nil {
			return "", err
		}
		result = res
		return domain.QuestionSubmitted, nil
	})
	e.submitting = false
	conflict := errors.Is(err, domain.ErrSubmissionConflict)
	if err != nil && !conflict {
		e.broadcastLocked()
		e.mu.Unlock()
		log.Warn().Err(err).Str("question_id", question.ID).Msg("answer submission failed")
		return err
	}

	if conflict {
		// The server already has this answer on record; adopt the terminal
		// state and move on without touching the score.
		p.State = domain.QuestionSubmitted
	} else {
		p.Correct = result.IsCorrect
		if result.IsCorrect {
			e.correctCount++
		}
		// Score is always the server's authoritative value.
		e.score = result.CurrentScore
	}
	score, correctCount := e.score, e.correctCount

	// Resumed attempts can have recorded answers ahead of the current
	// question; advancing steps past them.
	next := e.nextOpenLocked(index + 1)
	done := next >= len(e.progress)
	if !done {
		e.current = next
		e.startCountdownLocked(ctx)
	}
	e.broadcastLocked()
	e.mu.Unlock()

	if e.publisher != nil {
		e.publisher.SubmitScore(e.gameID, e.playerID, score, correctCount)
	}
	if done {
		return e.finalize(ctx)
	}
	return nil
}

// Skip advances past the current question without submitting anything.
func (e *Engine) Skip(ctx context.Context) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return domain.ErrAttemptFinished
	}
	if e.submitting {
		e.mu.Unlock()
		return nil
	}
	next := e.nextOpenLocked(e.current + 1)
	done := next >= len(e.progress)
	if !done {
		e.current = next
		e.startCountdownLocked(ctx)
	} else {
		e.timerGen++
	}
	e.broadcastLocked()
	e.mu.Unlock()

	if done {
		return e.finalize(ctx)
	}
	return nil
}

// finalize marks the attempt finished server-side and, in multiplayer mode,
// enters the results-pending phase instead of leaving the quiz.
func (e *Engine) finalize(ctx context.Context) error {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return nil
	}
	e.finished = true
	e.timerGen++
	e.awaitingOpp = e.publisher != nil
	attempt := e.attempt
	score, correctCount := e.score, e.correctCount
	e.broadcastLocked()
	e.mu.Unlock()

	if err := e.store.Delete(ctx, attemptKey); err != nil {
		log.Warn().Err(err).Msg("failed to clear stored attempt")
	}
	if err := e.api.FinishAttempt(ctx, attempt); err != nil {
		log.Warn().Err(err).Str("attempt_id", attempt.AttemptID).Msg("finish attempt failed")
		return err
	}
	log.Info().Str("attempt_id", attempt.AttemptID).Int("score", score).Int("correct", correctCount).Msg("attempt finished")

	if e.publisher != nil {
		e.publisher.FinishGame(e.gameID, e.playerID)
	}
	return nil
}

// Snapshot returns the engine's current observable state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// CurrentQuestion returns the question awaiting an answer, if any.
func (e *Engine) CurrentQuestion() (domain.Question, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.current >= len(e.quiz.Questions) {
		return domain.Question{}, false
	}
	return e.quiz.Questions[e.current], true
}

// Subscribe returns a channel receiving snapshots after every state change,
// plus a cancel function the caller must invoke to avoid leaks.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	initial := e.snapshotLocked()
	e.mu.Unlock()

	ch <- initial

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// startCountdownLocked restarts the countdown for the current question,
// invalidating any countdown still running for a previous question.
func (e *Engine) startCountdownLocked(ctx context.Context) {
	e.timerGen++
	gen := e.timerGen
	index := e.current
	// A submitted question keeps its frozen TimeLeft and needs no timer.
	if e.progress[index].Submitted() {
		return
	}
	e.progress[index].TimeLeft = int(e.questionTime / time.Second)
	go e.runCountdown(ctx, gen, index)
}

// runCountdown decrements TimeLeft once per second. It goes inert as soon as
// the question submits or a newer generation supersedes it. At zero it
// auto-submits a selected-but-unsubmitted choice, or skips when nothing is
// selected.
func (e *Engine) runCountdown(ctx context.Context, gen, index int) {
	ticker := e.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.mu.Lock()
			if e.timerGen != gen || e.finished {
				e.mu.Unlock()
				return
			}
			p := &e.progress[index]
			if p.Submitted() {
				e.mu.Unlock()
				return
			}
			if p.TimeLeft > 0 {
				p.TimeLeft--
			}
			expired := p.TimeLeft == 0 && p.State != domain.QuestionSubmitting
			hasSelection := p.SelectedChoice >= 0
			e.broadcastLocked()
			e.mu.Unlock()

			if !expired {
				continue
			}
			if hasSelection {
				if err := e.SubmitCurrent(ctx); err != nil {
					log.Warn().Err(err).Int("question", index).Msg("timer auto-submit failed")
				}
			} else {
				if err := e.Skip(ctx); err != nil {
					log.Warn().Err(err).Int("question", index).Msg("timer skip failed")
				}
			}
			return
		}
	}
}

func (e *Engine) snapshotLocked() Snapshot {
	progress := make([]domain.QuestionProgress, len(e.progress))
	copy(progress, e.progress)
	return Snapshot{
		QuizID:           e.quiz.ID,
		AttemptID:        e.attempt.AttemptID,
		CurrentIndex:     e.current,
		Progress:         progress,
		Score:            e.score,
		CorrectCount:     e.correctCount,
		Finished:         e.finished,
		AwaitingOpponent: e.awaitingOpp,
	}
}

func (e *Engine) broadcastLocked() {
	snapshot := e.snapshotLocked()
	for ch := range e.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the stale snapshot so a slow subscriber never blocks.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// nextOpenLocked returns the first question index at or after from that has
// not been submitted, or len(progress) when none remain.
func (e *Engine) nextOpenLocked(from int) int {
	for from < len(e.progress) && e.progress[from].Submitted() {
		from++
	}
	return from
}

func choiceIndex(q domain.Question, choiceID string) int {
	for i, choice := range q.Choices {
		if choice.ID == choiceID {
			return i
		}
	}
	return -1
}

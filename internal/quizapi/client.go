package quizapi

import (
	"context"
	"net/http"
	"net/url"

	"quiz-battle-client/internal/domain"
	"quiz-battle-client/internal/gateway"
)

// Doer is the authenticated gateway surface the quiz API client needs.
type Doer interface {
	DoJSON(ctx context.Context, method, path string, body, dest any, opts ...gateway.RequestOption) error
}

// Client wraps the quiz-content collaborator endpoints. Attempt-scoped calls
// carry the attempt token alongside the session credential; the two are
// independent and neither substitutes for the other.
type Client struct {
	gw Doer
}

func NewClient(gw Doer) *Client {
	return &Client{gw: gw}
}

func (c *Client) GetQuizByID(ctx context.Context, quizID string) (domain.Quiz, error) {
	var quiz domain.Quiz
	err := c.gw.DoJSON(ctx, http.MethodGet, "/quizzes/"+url.PathEscape(quizID), nil, &quiz)
	return quiz, err
}

func (c *Client) StartAttempt(ctx context.Context, quizID string) (domain.Attempt, error) {
	var attempt domain.Attempt
	err := c.gw.DoJSON(ctx, http.MethodPost, "/quizzes/"+url.PathEscape(quizID)+"/attempts", nil, &attempt)
	if err != nil {
		return domain.Attempt{}, err
	}
	if attempt.QuizID == "" {
		attempt.QuizID = quizID
	}
	return attempt, nil
}

func (c *Client) SubmitAnswer(ctx context.Context, attempt domain.Attempt, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	var result domain.AnswerResult
	err := c.gw.DoJSON(ctx, http.MethodPost, "/attempts/"+url.PathEscape(attempt.AttemptID)+"/answers",
		submission, &result, gateway.WithHeader("X-Attempt-Token", attempt.AttemptToken))
	return result, err
}

func (c *Client) FinishAttempt(ctx context.Context, attempt domain.Attempt) error {
	return c.gw.DoJSON(ctx, http.MethodPost, "/attempts/"+url.PathEscape(attempt.AttemptID)+"/finish",
		nil, nil, gateway.WithHeader("X-Attempt-Token", attempt.AttemptToken))
}

func (c *Client) GetResult(ctx context.Context, attemptID string) (domain.AttemptResult, error) {
	var result domain.AttemptResult
	err := c.gw.DoJSON(ctx, http.MethodGet, "/attempts/"+url.PathEscape(attemptID)+"/result", nil, &result)
	return result, err
}

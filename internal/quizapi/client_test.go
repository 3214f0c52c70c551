package quizapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"quiz-battle-client/internal/domain"
	"quiz-battle-client/internal/gateway"
	"quiz-battle-client/internal/infra/memory"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := memory.NewStateStore()
	state := domain.CredentialState{AccessToken: "token-1", RefreshToken: "refresh-1"}
	if err := store.Put(context.Background(), "auth:credentials", state); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	gw := gateway.New(server.URL, store)
	if err := gw.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	return NewClient(gw)
}

func TestSubmitAnswerCarriesAttemptToken(t *testing.T) {
	var gotToken string
	var gotSubmission domain.AnswerSubmission
	mux := http.NewServeMux()
	mux.HandleFunc("/attempts/a1/answers", func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Attempt-Token")
		json.NewDecoder(r.Body).Decode(&gotSubmission)
		json.NewEncoder(w).Encode(domain.AnswerResult{IsCorrect: true, CurrentScore: 10})
	})
	client := newTestClient(t, mux)

	attempt := domain.Attempt{AttemptID: "a1", AttemptToken: "cap-1"}
	result, err := client.SubmitAnswer(context.Background(), attempt, domain.AnswerSubmission{
		QuestionID:       "q1",
		SelectedChoiceID: "c2",
		IdempotencyKey:   "key-1",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if gotToken != "cap-1" {
		t.Fatalf("expected attempt token header, got %q", gotToken)
	}
	if gotSubmission.IdempotencyKey != "key-1" || gotSubmission.SelectedChoiceID != "c2" {
		t.Fatalf("unexpected submission payload: %+v", gotSubmission)
	}
	if !result.IsCorrect || result.CurrentScore != 10 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestStartAttemptFillsQuizID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quizzes/quiz-7/attempts", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Attempt{AttemptID: "a1", AttemptToken: "cap-1"})
	})
	client := newTestClient(t, mux)

	attempt, err := client.StartAttempt(context.Background(), "quiz-7")
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	if attempt.QuizID != "quiz-7" {
		t.Fatalf("expected quiz id to be filled, got %+v", attempt)
	}
}

func TestGetQuizByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quizzes/quiz-7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Quiz{
			ID: "quiz-7",
			Questions: []domain.Question{
				{ID: "q1", Prompt: "2 + 2?", Choices: []domain.Choice{{ID: "c1", Text: "3"}, {ID: "c2", Text: "4"}}},
			},
		})
	})
	client := newTestClient(t, mux)

	quiz, err := client.GetQuizByID(context.Background(), "quiz-7")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].ID != "q1" {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
}

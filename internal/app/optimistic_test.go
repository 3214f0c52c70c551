package app

import (
	"errors"
	"testing"
)

func TestMutationCommitsAuthoritativeValue(t *testing.T) {
	balance := 100
	err := Mutation(&balance, 90, func() (int, error) {
		return 85, nil
	})
	if err != nil {
		t.Fatalf("mutation: %v", err)
	}
	if balance != 85 {
		t.Fatalf("expected committed value 85, got %d", balance)
	}
}

func TestMutationRollsBackOnError(t *testing.T) {
	balance := 100
	boom := errors.New("boom")
	err := Mutation(&balance, 90, func() (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected commit error, got %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected rollback to 100, got %d", balance)
	}
}

package voice

import (
	"context"
	"fmt"

	"quiz-battle-client/internal/domain"
)

// Engine is the attempt engine surface voice commands drive. The interpreter
// is a convenience alias for the same operations the pointer-driven UI uses,
// so the submitted and reentrancy guards apply unchanged.
type Engine interface {
	HandleAnswer(choiceIndex int) error
	SubmitCurrent(ctx context.Context) error
	Skip(ctx context.Context) error
}

// Speaker voices feedback back to the user.
type Speaker interface {
	Say(text string)
}

// Interpreter routes parsed commands into the engine.
type Interpreter struct {
	engine  Engine
	speaker Speaker
}

func NewInterpreter(engine Engine, speaker Speaker) *Interpreter {
	return &Interpreter{engine: engine, speaker: speaker}
}

// Handle interprets one utterance. Unrecognized input produces a spoken
// clarification prompt, never a silent failure.
func (i *Interpreter) Handle(ctx context.Context, utterance string) error {
	switch cmd := Parse(utterance).(type) {
	case SelectChoice:
		return i.engine.HandleAnswer(cmd.Index)
	case Submit:
		return i.engine.SubmitCurrent(ctx)
	case Skip:
		return i.engine.Skip(ctx)
	default:
		i.speaker.Say("Say a letter between A and D, or say submit or skip.")
		return fmt.Errorf("%w: %q", domain.ErrUnrecognizedCommand, utterance)
	}
}

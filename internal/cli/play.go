package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"quiz-battle-client/internal/app"
	"quiz-battle-client/internal/config"
	"quiz-battle-client/internal/domain"
	"quiz-battle-client/internal/voice"
)

// NewPlayCmd plays a quiz solo.
func NewPlayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play <quizID>",
		Short: "Play a quiz solo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := buildDeps(ctx, *configPath)
			if err != nil {
				return err
			}
			if _, err := d.requireUser(); err != nil {
				return err
			}

			engine := app.NewEngine(d.api, d.store,
				app.WithQuestionTime(config.Duration(d.cfg.Quiz.QuestionTime, 60*time.Second)))
			if err := engine.Start(ctx, args[0]); err != nil {
				return err
			}
			return playLoop(ctx, engine, bufio.NewScanner(os.Stdin), cmd.OutOrStdout())
		},
	}
}

// printSpeaker voices prompts by printing them; the CLI has no audio output.
type printSpeaker struct {
	out io.Writer
}

func (s printSpeaker) Say(text string) {
	fmt.Fprintln(s.out, text)
}

// playLoop reads commands and feeds them through the voice grammar, making
// the parser the single input path for selection, submission, and skipping.
func playLoop(ctx context.Context, engine *app.Engine, in *bufio.Scanner, out io.Writer) error {
	interp := voice.NewInterpreter(engine, printSpeaker{out: out})

	lastIndex := -1
	for {
		snapshot := engine.Snapshot()
		if snapshot.Finished {
			fmt.Fprintf(out, "finished! score %d, %d correct\n", snapshot.Score, snapshot.CorrectCount)
			return nil
		}
		if question, ok := engine.CurrentQuestion(); ok && snapshot.CurrentIndex != lastIndex {
			lastIndex = snapshot.CurrentIndex
			fmt.Fprintf(out, "\nQ%d: %s (%ds)\n", snapshot.CurrentIndex+1, question.Prompt, snapshot.Progress[snapshot.CurrentIndex].TimeLeft)
			for i, choice := range question.Choices {
				fmt.Fprintf(out, "  %c) %s\n", 'a'+i, choice.Text)
			}
		}

		fmt.Fprint(out, "> ")
		if !in.Scan() {
			return in.Err()
		}
		line := in.Text()
		if strings.TrimSpace(line) == "quit" {
			return nil
		}
		if err := interp.Handle(ctx, line); err != nil && !errors.Is(err, domain.ErrUnrecognizedCommand) {
			// The speaker already prompted for unrecognized input; other
			// errors print inline and the question stays retryable.
			fmt.Fprintln(out, err)
		}
	}
}

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"quiz-battle-client/internal/app"
	"quiz-battle-client/internal/config"
	"quiz-battle-client/internal/domain"
	"quiz-battle-client/internal/realtime"
)

const opponentWait = 30 * time.Second

// NewDuelCmd plays a quiz against another player over the realtime hub.
func NewDuelCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duel",
		Short: "Play a two-player quiz battle",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a game and share the code with your opponent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuel(cmd, *configPath, "")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "join <code>",
		Short: "Join a game using its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDuel(cmd, *configPath, args[0])
		},
	})
	return cmd
}

func runDuel(cmd *cobra.Command, configPath, joinCode string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	out := cmd.OutOrStdout()

	d, err := buildDeps(ctx, configPath)
	if err != nil {
		return err
	}
	playerID, err := d.requireUser()
	if err != nil {
		return err
	}

	channel := realtime.NewChannel(d.cfg.Hub.URL, d.store)
	if err := channel.Restore(ctx); err != nil {
		return err
	}
	go channel.Run(ctx)

	if err := waitForConnection(ctx, channel); err != nil {
		return err
	}

	if joinCode == "" {
		code, err := channel.CreateGame()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "game code: %s\nwaiting for an opponent...\n", code)
	} else {
		if err := channel.JoinGame(joinCode, playerID); err != nil {
			return err
		}
		fmt.Fprintln(out, "joined, waiting for the game to start...")
	}

	session, err := waitForStatus(ctx, channel, domain.StatusPlaying)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "game on! quiz %s\n", session.QuizID)

	engine := app.NewEngine(d.api, d.store,
		app.WithQuestionTime(config.Duration(d.cfg.Quiz.QuestionTime, 60*time.Second)),
		app.WithPublisher(channel, session.GameID, playerID))
	if err := engine.Start(ctx, session.QuizID); err != nil {
		return err
	}
	if err := playLoop(ctx, engine, bufio.NewScanner(os.Stdin), out); err != nil {
		return err
	}

	printOutcome(ctx, out, channel, engine.Snapshot())
	channel.ResetGame(ctx)
	return nil
}

// printOutcome waits briefly for the opponent's finish latch, then compares
// scores. If the latch never arrives the last relayed score is shown as-is.
func printOutcome(ctx context.Context, out io.Writer, channel *realtime.Channel, own app.Snapshot) {
	session := channel.Session()
	if !session.OpponentFinished {
		fmt.Fprintln(out, "waiting for your opponent to finish...")
		waitCtx, cancel := context.WithTimeout(ctx, opponentWait)
		session, _ = waitForLatch(waitCtx, channel)
		cancel()
	}

	fmt.Fprintf(out, "your score: %d (%d correct)\n", own.Score, own.CorrectCount)
	if session.OpponentFinished {
		fmt.Fprintf(out, "opponent:   %d (%d correct)\n", session.OpponentScore, session.OpponentCorrectCount)
		switch {
		case own.Score > session.OpponentScore:
			fmt.Fprintln(out, "you win!")
		case own.Score < session.OpponentScore:
			fmt.Fprintln(out, "you lose.")
		default:
			fmt.Fprintln(out, "it's a draw.")
		}
		return
	}
	fmt.Fprintf(out, "opponent:   %d so far, still synchronizing\n", session.OpponentScore)
}

func waitForConnection(ctx context.Context, channel *realtime.Channel) error {
	deadline := time.After(10 * time.Second)
	for {
		if channel.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w: hub unreachable", domain.ErrTransport)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func waitForStatus(ctx context.Context, channel *realtime.Channel, want domain.GameStatus) (domain.GameSession, error) {
	updates, cancel := channel.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return domain.GameSession{}, ctx.Err()
		case session := <-updates:
			if session.Status == want {
				return session, nil
			}
		}
	}
}

func waitForLatch(ctx context.Context, channel *realtime.Channel) (domain.GameSession, bool) {
	updates, cancel := channel.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return channel.Session(), false
		case session := <-updates:
			if session.OpponentFinished {
				return session, true
			}
		}
	}
}

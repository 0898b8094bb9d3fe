package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/wayfarer/internal/gateway"
	"github.com/soyeahso/wayfarer/internal/turn"
)

func newChatCmd() *cobra.Command {
	var (
		message   string
		sessionID string
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Plan a trip interactively, or send one message with -m",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			out := cmd.OutOrStdout()

			if message != "" {
				reply, err := rt.turns.Run(ctx, turn.Request{SessionID: sessionID, UserID: userID, Text: message})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, reply)
				fmt.Fprintf(cmd.ErrOrStderr(), "[session %s]\n", sessionID)
				return nil
			}
			return repl(ctx, out, rt.turns, sessionID, userID)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and print the reply")
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().StringVar(&userID, "user", "", "user ID the session belongs to")

	return cmd
}

// repl reads lines with history and streams each reply as it arrives.
// "/new" starts a fresh session; "exit" or Ctrl-D quits.
func repl(ctx context.Context, out io.Writer, chat gateway.Chatter, sessionID, userID string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(paths.Data, "chat_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintf(out, "session %s (type /new for a new trip, exit to quit)\n", sessionID)
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			sessionID = uuid.NewString()
			fmt.Fprintf(out, "session %s\n", sessionID)
			continue
		}

		if err := streamReply(ctx, out, chat, turn.Request{SessionID: sessionID, UserID: userID, Text: input}); err != nil {
			return err
		}
	}
}

// streamReply prints a turn's text as it streams and ends the line on stop.
func streamReply(ctx context.Context, out io.Writer, chat gateway.Chatter, req turn.Request) error {
	for ev := range chat.Stream(ctx, req) {
		switch ev.Kind {
		case turn.KindText:
			fmt.Fprint(out, ev.Text)
		case turn.KindStop:
			fmt.Fprintln(out)
		}
	}
	return ctx.Err()
}

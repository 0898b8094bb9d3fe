package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/wayfarer/internal/sessions"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "List, inspect, rename and delete sessions",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionHistoryCmd())
	cmd.AddCommand(newSessionRenameCmd())
	cmd.AddCommand(newSessionDeleteCmd())
	return cmd
}

// withSessions opens the stores and runs fn against a session service.
// No agent cache runs here, so deletion only clears the stores.
func withSessions(ctx context.Context, fn func(*sessions.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	mem, memCloser, err := openMemory(ctx, cfg.FastTier, st.durable, log)
	if err != nil {
		return err
	}
	defer memCloser.Close()

	return fn(sessions.New(st.durable, mem, nil, nil, log))
}

func newSessionListCmd() *cobra.Command {
	var (
		userID   string
		page     int
		pageSize int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), func(svc *sessions.Service) error {
				p, err := svc.List(cmd.Context(), userID, page, pageSize)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(p.Sessions) == 0 {
					fmt.Fprintln(out, "no sessions")
					return nil
				}
				for _, s := range p.Sessions {
					itinerary := "-"
					if s.Itinerary != "" {
						itinerary = "itinerary"
					}
					fmt.Fprintf(out, "%-36s  %-16s  %-9s  %s\n",
						s.ID, s.ModifiedAt.Local().Format("2006-01-02 15:04"), itinerary, s.Title)
				}
				fmt.Fprintf(out, "page %d, %d of %d sessions\n", p.Page, len(p.Sessions), p.Total)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID (default: the default user)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "size", 20, "sessions per page")
	return cmd
}

func newSessionHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), func(svc *sessions.Service) error {
				sess, err := svc.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				msgs, err := svc.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", sess.Title)
				for _, m := range msgs {
					fmt.Fprintf(out, "\n[%s] %s\n%s\n", m.Role, m.CreatedAt.Local().Format("15:04:05"), m.Content)
				}
				if sess.Itinerary != "" {
					fmt.Fprintf(out, "\nitinerary: %s\n", sess.Itinerary)
				}
				return nil
			})
		},
	}
}

func newSessionRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Set a session's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args[1:], " ")
			return withSessions(cmd.Context(), func(svc *sessions.Service) error {
				if err := svc.Rename(cmd.Context(), args[0], title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
				return nil
			})
		},
	}
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSessions(cmd.Context(), func(svc *sessions.Service) error {
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

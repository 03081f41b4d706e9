package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"CepaChat/internal/config"
	"CepaChat/internal/session"
)

func newSessionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions on the backend",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				sessions, err := a.client.ListSessions(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}
				printSessions(cmd.OutOrStdout(), sessions)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show a session and its messages",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				sess, err := a.client.GetSession(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to load session: %w", err)
				}
				printTranscript(cmd.OutOrStdout(), sess)
				return nil
			},
		},
		&cobra.Command{
			Use:   "new [title]",
			Short: "Create an empty session",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				sess, err := a.client.CreateSession(cmd.Context(), strings.Join(args, " "))
				if err != nil {
					return fmt.Errorf("failed to create session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rename <id> <title>",
			Short: "Rename a session",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				sess, err := a.client.UpdateSession(cmd.Context(), args[0], strings.Join(args[1:], " "))
				if err != nil {
					return fmt.Errorf("failed to rename session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s renamed to %q\n", sess.ID, sess.Title)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a session on the backend",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer a.Close()

				if err := a.client.DeleteSession(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete session: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printSessions(w io.Writer, sessions []session.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tLAST ACTIVITY\tACTIVE")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", s.ID, title, s.MessageCount, formatTime(s.LastActivity), s.Active)
	}
	tw.Flush()
}

func printTranscript(w io.Writer, sess *session.Session) {
	title := sess.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "Session %s: %s\n\n", sess.ID, title)
	for _, m := range sess.Messages {
		switch m := m.(type) {
		case session.UserMessage:
			fmt.Fprintf(w, "You: %s\n", m.Content)
		case session.AssistantMessage:
			fmt.Fprintf(w, "Bot: %s\n", m.Content)
			if m.Source != nil && m.Source.Name != "" {
				fmt.Fprintf(w, "     Source: %s\n", m.Source.Name)
			}
			fmt.Fprintln(w)
		}
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

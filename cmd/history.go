package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored attendance sessions",
	Long: `List stored attendance sessions, oldest first.

Sessions replaced by an amendment are hidden unless --all is given.

Example:
  rollcall history --subject Databases --from 2024-03-01 --to 2024-03-31`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the records of a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyAmendCmd = &cobra.Command{
	Use:   "amend <session-id>",
	Short: "Correct a stored session",
	Long: `Store a corrected copy of a session. The original session is kept and
marked as superseded by the new one.

Example:
  rollcall history amend 3f2a... --present S042 --reason "arrived late"`,
	Args: cobra.ExactArgs(1),
	RunE: runHistoryAmend,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyAmendCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	addFilterFlags(historyCmd)
	historyCmd.Flags().Bool("all", false, "Include sessions replaced by an amendment")

	addCorrectionFlags(historyAmendCmd)

	historyDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation prompt")
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runHistory(cmd *cobra.Command, args []string) error {
	filter := filterFromFlags(cmd)
	filter.IncludeSuperseded = mustGetBool(cmd, "all")
	if err := validateFilterDates(filter); err != nil {
		return err
	}

	return withSessionStore(func(ctx context.Context, store database.SessionStore) error {
		sessions, err := store.ListSessions(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		printSessions(os.Stdout, sessions)
		fmt.Printf("\nTotal: %d sessions\n", len(sessions))
		return nil
	})
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	return withSessionStore(func(ctx context.Context, store database.SessionStore) error {
		session, err := store.GetSession(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("session %s not found", args[0])
		}

		fmt.Printf("Session:  %s\n", session.ID)
		fmt.Printf("Class:    %s / %s / %s / %s\n", session.Department, session.Year, session.Division, session.Subject)
		fmt.Printf("Taken:    %s %s", session.Date, session.Time)
		if session.TakenBy != "" {
			fmt.Printf(" by %s", session.TakenBy)
		}
		fmt.Println()
		if session.TimeSlot != "" {
			fmt.Printf("Slot:     %s\n", session.TimeSlot)
		}
		if session.Supersedes != "" {
			fmt.Printf("Amends:   %s\n", session.Supersedes)
		}
		fmt.Println()

		printDecisions(os.Stdout, session.Records)
		t := session.Tally()
		fmt.Printf("\nPresent: %d  Absent: %d  Corrected: %d  Total: %d\n", t.Present, t.Absent, t.Corrected, t.Total)
		return nil
	})
}

func runHistoryAmend(cmd *cobra.Command, args []string) error {
	corrections, err := parseCorrections(cmd)
	if err != nil {
		return err
	}
	if len(corrections) == 0 {
		return fmt.Errorf("nothing to amend: use --present or --absent")
	}

	return withSessionStore(func(ctx context.Context, store database.SessionStore) error {
		next, err := database.AmendSession(ctx, store, args[0], corrections, time.Now())
		if err != nil {
			return fmt.Errorf("failed to amend session: %w", err)
		}
		t := next.Tally()
		fmt.Printf("Saved session %s amending %s\n", next.ID, next.Supersedes)
		fmt.Printf("Present: %d  Absent: %d  Corrected: %d  Total: %d\n", t.Present, t.Absent, t.Corrected, t.Total)
		return nil
	})
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	skipConfirm := mustGetBool(cmd, "yes")

	return withSessionStore(func(ctx context.Context, store database.SessionStore) error {
		session, err := store.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to get session: %w", err)
		}
		if session == nil {
			return fmt.Errorf("session %s not found", id)
		}

		fmt.Printf("Session %s: %s %s %s (%d records)\n", session.ID, session.Date, session.Time, session.Subject, len(session.Records))
		if !skipConfirm && !confirmAction("\nDelete this session? [y/N]: ") {
			fmt.Println("Cancelled.")
			return nil
		}

		if err := store.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		fmt.Println("Deleted.")
		return nil
	})
}

// withSessionStore opens the session database for the duration of fn.
func withSessionStore(fn func(ctx context.Context, store database.SessionStore) error) error {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := context.Background()
	store, err := openSessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessionStore()

	return fn(ctx, store)
}

func validateFilterDates(f database.SessionFilter) error {
	for name, value := range map[string]string{"--from": f.DateFrom, "--to": f.DateTo} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(attendance.DateLayout, value); err != nil {
			return fmt.Errorf("%s must be YYYY-MM-DD, got %q", name, value)
		}
	}
	return nil
}

func printSessions(out io.Writer, sessions []attendance.Session) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tTIME\tCLASS\tSUBJECT\tSLOT\tPRESENT\tAMENDS")
	fmt.Fprintln(w, "--\t----\t----\t-----\t-------\t----\t-------\t------")
	for i := range sessions {
		s := &sessions[i]
		t := s.Tally()
		amends := "-"
		if s.Supersedes != "" {
			amends = s.Supersedes
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s %s %s\t%s\t%s\t%d/%d\t%s\n",
			s.ID, s.Date, s.Time, s.Department, s.Year, s.Division, s.Subject, s.TimeSlot, t.Present, t.Total, amends)
	}
	w.Flush()
}

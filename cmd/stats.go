package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show attendance statistics",
	Long: `Show per-student and per-session attendance for the stored sessions
matching the filters. Amended sessions count once, with their latest
corrections.

Example:
  rollcall stats --subject Databases --from 2024-03-01 --min-percentage 80
  rollcall stats --subject Databases --student novak`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	addFilterFlags(statsCmd)
	statsCmd.Flags().Float64("min-percentage", -1, "Flag students below this attendance percentage (overrides MIN_ATTENDANCE_PERCENTAGE)")
	statsCmd.Flags().String("student", "", "Only show students whose name matches")
	statsCmd.Flags().Bool("sessions", false, "Also list per-session attendance")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	filter := filterFromFlags(cmd)
	if err := validateFilterDates(filter); err != nil {
		return err
	}
	minPct := mustGetFloat64(cmd, "min-percentage")
	if minPct < 0 {
		minPct = cfg.Attendance.MinAttendancePercentage
	}
	if minPct > 100 {
		return fmt.Errorf("--min-percentage must be between 0 and 100")
	}
	studentQuery := mustGetString(cmd, "student")
	showSessions := mustGetBool(cmd, "sessions")

	var only map[string]bool
	if studentQuery != "" {
		rosters, closeRoster, err := openRoster(cfg)
		if err != nil {
			return err
		}
		defer closeRoster()
		found, err := rosters.FindByName(context.Background(), studentQuery)
		if err != nil {
			return fmt.Errorf("failed to search students: %w", err)
		}
		if len(found) == 0 {
			fmt.Printf("No students matching %q.\n", studentQuery)
			return nil
		}
		only = make(map[string]bool, len(found))
		for _, s := range found {
			only[s.StudentID] = true
		}
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

		stats := attendance.ComputeStats(sessions, minPct)
		students := filterStudents(stats.Students, only)
		below := filterStudents(stats.BelowMinimum, only)

		fmt.Printf("Sessions: %d\n\n", stats.TotalSessions)
		printStudentStats(os.Stdout, students)
		fmt.Printf("\nTotal: %d students\n", len(students))

		if showSessions {
			fmt.Println()
			printSessionStats(os.Stdout, stats.Sessions)
		}

		if len(below) > 0 {
			fmt.Printf("\nBelow %.0f%% attendance:\n", minPct)
			printStudentStats(os.Stdout, below)
		}
		return nil
	})
}

func filterStudents(students []attendance.StudentStats, only map[string]bool) []attendance.StudentStats {
	if only == nil {
		return students
	}
	out := make([]attendance.StudentStats, 0, len(only))
	for _, s := range students {
		if only[s.StudentID] {
			out = append(out, s)
		}
	}
	return out
}

func printStudentStats(out io.Writer, students []attendance.StudentStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tNAME\tPRESENT\tABSENT\tTOTAL\tATTENDANCE")
	fmt.Fprintln(w, "-------\t----\t-------\t------\t-----\t----------")
	for _, s := range students {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.1f%%\n", s.StudentID, s.StudentName, s.Present, s.Absent, s.Total, s.Percentage)
	}
	w.Flush()
}

func printSessionStats(out io.Writer, sessions []attendance.SessionStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tDATE\tTIME\tSUBJECT\tSLOT\tPRESENT\tATTENDANCE")
	fmt.Fprintln(w, "-------\t----\t----\t-------\t----\t-------\t----------")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%.1f%%\n", s.ID, s.Date, s.Time, s.Subject, s.TimeSlot, s.Present, s.Total, s.Percentage)
	}
	w.Flush()
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
)

var takeCmd = &cobra.Command{
	Use:   "take [photo...]",
	Short: "Take attendance from class photos",
	Long: `Detect faces in the given class photos, compare every face with every
enrolled student and print one Present/Absent decision per student.

Corrections can be applied before saving with --present/--absent, and the
session is stored only with --commit.

Example:
  rollcall take --department "Computer Science" --year Second --division A \
    --subject Databases --time-slot 09:00-10:00 front.jpg back.jpg
  rollcall take ... --absent S042 --reason "left after roll call" --commit`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTake,
}

func init() {
	rootCmd.AddCommand(takeCmd)

	addClassFlags(takeCmd)
	takeCmd.Flags().String("time-slot", "", "Time slot of the class, e.g. 09:00-10:00")
	takeCmd.Flags().String("taken-by", "", "Who took the attendance")
	takeCmd.Flags().Int("workers", 0, "Concurrent comparisons (overrides MATCHER_WORKERS)")
	takeCmd.Flags().Bool("commit", false, "Save the session to the database")
	addCorrectionFlags(takeCmd)
}

func runTake(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	class := classFromFlags(cmd)
	if err := class.Validate(); err != nil {
		return err
	}
	corrections, err := parseCorrections(cmd)
	if err != nil {
		return err
	}
	commit := mustGetBool(cmd, "commit")
	workers := mustGetInt(cmd, "workers")
	if workers <= 0 {
		workers = cfg.Matcher.Workers
	}

	photos, err := readPhotoFiles(args)
	if err != nil {
		return err
	}

	rosters, closeRoster, err := openRoster(cfg)
	if err != nil {
		return err
	}
	defer closeRoster()

	var saver attendance.SessionSaver
	if commit {
		store, err := openSessionStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeSessionStore()
		saver = store
	}

	faceMatcher, _ := newMatcher(cfg, log)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Comparing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("comparisons"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSpinnerType(14),
	)
	svc := attendance.NewService(faceMatcher, rosters, saver, attendance.ServiceConfig{
		Thresholds: thresholds(cfg),
		Workers:    workers,
		DraftTTL:   cfg.Attendance.DraftTTL,
		Progress:   func() { bar.Add(1) },
	}, log, nil)

	draft, err := svc.Take(ctx, class, mustGetString(cmd, "taken-by"), photos)
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}
	for _, c := range corrections {
		if _, err := svc.Correct(draft.ID, c.StudentID, c.Status, c.Reason); err != nil {
			return err
		}
	}

	printReport(os.Stdout, photos, draft.Report)
	printDecisions(os.Stdout, draft.Decisions.List())
	t := draft.Decisions.Tally()
	fmt.Printf("\nPresent: %d  Absent: %d  Corrected: %d  Total: %d\n", t.Present, t.Absent, t.Corrected, t.Total)

	if !commit {
		fmt.Println("\nNot saved. Re-run with --commit to store the session.")
		return nil
	}

	session, err := svc.Commit(ctx, draft.ID)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	fmt.Printf("\nSaved session %s (%s %s)\n", session.ID, session.Date, session.Time)
	return nil
}

func printReport(out io.Writer, photos []attendance.Photo, report attendance.CollectReport) {
	for i, p := range photos {
		faces := 0
		if i < len(report.FacesPerPhoto) {
			faces = report.FacesPerPhoto[i]
		}
		fmt.Fprintf(out, "Photo %d (%s): %d face(s)\n", i+1, p.Name, faces)
	}
	for _, f := range report.DetectionFailures {
		fmt.Fprintf(out, "  WARNING: %v\n", f)
	}
	for _, d := range report.DuplicatePhotos {
		fmt.Fprintf(out, "  WARNING: %s looks like a duplicate of %s\n", photos[d.Second].Name, photos[d.First].Name)
	}
	if n := len(report.ComparisonFailures); n > 0 {
		fmt.Fprintf(out, "  WARNING: %d comparison(s) failed and were skipped\n", n)
	}
	fmt.Fprintln(out)
}

func printDecisions(out io.Writer, decisions []attendance.StudentDecision) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tNAME\tSTATUS\tCONFIDENCE\tSOURCE\tNOTE")
	fmt.Fprintln(w, "-------\t----\t------\t----------\t------\t----")
	for _, d := range decisions {
		source := "-"
		if d.SourcePhotoIndex != nil && d.SourceFaceIndex != nil {
			source = fmt.Sprintf("photo %d face %d", *d.SourcePhotoIndex, *d.SourceFaceIndex)
		}
		note := ""
		if d.ManuallyCorrected {
			note = "corrected"
			if d.CorrectionReason != nil && *d.CorrectionReason != "" {
				note += ": " + *d.CorrectionReason
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\n", d.StudentID, d.StudentName, d.Status, d.Confidence, source, note)
	}
	w.Flush()
}

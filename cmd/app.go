package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/logger"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/roster"
)

// newLogger builds the process logger from config and the --log-level flag.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log, err := logger.New(logger.Config{Level: level, JSON: cfg.Log.JSON})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

func thresholds(cfg *config.Config) attendance.Thresholds {
	return attendance.Thresholds{
		FaceMatch: cfg.Attendance.FaceMatchThreshold,
		Presence:  cfg.Attendance.PresenceThreshold,
	}
}

// rosterSource loads class rosters and looks students up by name.
type rosterSource interface {
	attendance.RosterSource
	FindByName(ctx context.Context, query string) ([]roster.Student, error)
}

// openRoster opens the roster file if configured, otherwise the SIS database.
func openRoster(cfg *config.Config) (rosterSource, func(), error) {
	if cfg.Roster.File != "" {
		f, err := roster.LoadFile(cfg.Roster.File)
		if err != nil {
			return nil, nil, err
		}
		return f, func() {}, nil
	}
	if cfg.Roster.SISDatabaseURL != "" {
		pool, err := mariadb.NewPool(cfg.Roster.SISDatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to SIS database: %w", err)
		}
		return roster.NewSQLSource(pool), func() { pool.Close() }, nil
	}
	return nil, nil, errors.New("ROSTER_FILE or SIS_DATABASE_URL environment variable is required")
}

// newMatcher wires the face service client and the reference image store.
func newMatcher(cfg *config.Config, log *zap.Logger) (*matcher.Matcher, *matcher.Client) {
	client := matcher.NewClient(cfg.Matcher.URL, cfg.Matcher.Timeout,
		matcher.WithRateLimit(cfg.Matcher.RateLimit),
	)
	refs := matcher.NewReferenceStore(cfg.Matcher.ReferenceDir, cfg.Matcher.ReferenceCacheTTL)
	return matcher.New(client, refs, matcher.WithLogger(log.Named("matcher"))), client
}

// sessionStore joins the registered reader and writer.
type sessionStore struct {
	database.SessionReader
	database.SessionWriter
}

// openSessionStore connects to PostgreSQL, applies migrations and returns
// the registered session store.
func openSessionStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (database.SessionStore, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	if !database.IsInitialized() {
		if err := postgres.Initialize(&cfg.Database, log); err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
	}
	reader, err := database.GetSessionReader(ctx)
	if err != nil {
		return nil, err
	}
	writer, err := database.GetSessionWriter(ctx)
	if err != nil {
		return nil, err
	}
	return sessionStore{SessionReader: reader, SessionWriter: writer}, nil
}

func closeSessionStore() {
	if pool := postgres.GetGlobalPool(); pool != nil {
		pool.Close()
	}
}

// addClassFlags registers the class context flags.
func addClassFlags(cmd *cobra.Command) {
	cmd.Flags().String("department", "", "Department, e.g. 'Computer Science'")
	cmd.Flags().String("year", "", "Year of study")
	cmd.Flags().String("division", "", "Division within the year")
	cmd.Flags().String("subject", "", "Subject")
}

func classFromFlags(cmd *cobra.Command) attendance.ClassContext {
	class := attendance.ClassContext{
		Department: mustGetString(cmd, "department"),
		Year:       mustGetString(cmd, "year"),
		Division:   mustGetString(cmd, "division"),
		Subject:    mustGetString(cmd, "subject"),
	}
	if cmd.Flags().Lookup("time-slot") != nil {
		class.TimeSlot = mustGetString(cmd, "time-slot")
	}
	return class
}

// addFilterFlags registers the session filter flags.
func addFilterFlags(cmd *cobra.Command) {
	addClassFlags(cmd)
	cmd.Flags().String("from", "", "Earliest session date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "Latest session date (YYYY-MM-DD)")
}

func filterFromFlags(cmd *cobra.Command) database.SessionFilter {
	class := classFromFlags(cmd)
	return database.SessionFilter{
		DateFrom:   mustGetString(cmd, "from"),
		DateTo:     mustGetString(cmd, "to"),
		Department: class.Department,
		Year:       class.Year,
		Division:   class.Division,
		Subject:    class.Subject,
	}
}

// parseCorrections turns --present and --absent student IDs into corrections.
func parseCorrections(cmd *cobra.Command) ([]attendance.Correction, error) {
	reason := mustGetString(cmd, "reason")
	var out []attendance.Correction
	seen := make(map[string]attendance.Status)
	for _, pair := range []struct {
		flag   string
		status attendance.Status
	}{
		{"present", attendance.StatusPresent},
		{"absent", attendance.StatusAbsent},
	} {
		for _, id := range mustGetStringSlice(cmd, pair.flag) {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if prev, ok := seen[id]; ok && prev != pair.status {
				return nil, fmt.Errorf("student %s is marked both present and absent", id)
			}
			seen[id] = pair.status
			out = append(out, attendance.Correction{StudentID: id, Status: pair.status, Reason: reason})
		}
	}
	return out, nil
}

func addCorrectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("present", nil, "Student IDs to mark present")
	cmd.Flags().StringSlice("absent", nil, "Student IDs to mark absent")
	cmd.Flags().String("reason", "", "Reason recorded with the corrections")
}

// readPhotoFiles reads photo files in argument order.
func readPhotoFiles(paths []string) ([]attendance.Photo, error) {
	photos := make([]attendance.Photo, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read photo: %w", err)
		}
		photos = append(photos, attendance.Photo{Name: filepath.Base(path), Data: data})
	}
	return photos, nil
}

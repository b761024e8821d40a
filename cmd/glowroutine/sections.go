package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hammamikhairi/glowroutine/internal/config"
	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/engine"
	"github.com/hammamikhairi/glowroutine/internal/sequencer"
	"github.com/hammamikhairi/glowroutine/internal/storage"
	"github.com/hammamikhairi/glowroutine/internal/storage/postgres"
)

func sectionsCmd(flags *rootFlags) *cobra.Command {
	var (
		userID  string
		asJSON  bool
		section string
	)
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Print a user's routine for today",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := setup(ctx, flags, "stderr")
			if err != nil {
				return err
			}
			defer d.Close()

			eng := d.newEngine()
			sections, err := loadSections(ctx, eng, userID, section)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sections)
			}
			printSections(cmd.OutOrStdout(), sections)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "demo", "user id")
	cmd.Flags().StringVarP(&section, "section", "s", "", "only this section (morning, evening, exercises)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func loadSections(ctx context.Context, eng *engine.Engine, userID, only string) ([]domain.RoutineSection, error) {
	if only != "" {
		name, err := domain.ParseSectionName(only)
		if err != nil {
			return nil, err
		}
		sec, err := eng.Section(ctx, userID, name)
		if err != nil {
			return nil, err
		}
		return []domain.RoutineSection{sec}, nil
	}

	sections, err := eng.Sections(ctx, userID)
	if err != nil {
		return nil, err
	}
	if hub, ok, err := eng.ExerciseHub(ctx, userID); err != nil {
		return nil, err
	} else if ok {
		sections = append(sections, hub)
	}
	return sections, nil
}

func printSections(w io.Writer, sections []domain.RoutineSection) {
	if len(sections) == 0 {
		fmt.Fprintln(w, "No routine yet. Pick some products first.")
		return
	}
	for _, sec := range sections {
		fmt.Fprintf(w, "%s (~%s, %d XP)\n", sec.Name, fmtSeconds(sec.EstimatedDuration), sequencer.TotalXP(sec))
		for i, st := range sec.Steps {
			line := fmt.Sprintf("  %d. %s", i+1, st.Label())
			if st.IsPending {
				line += "  [not confirmed yet]"
			}
			if sets := st.Sets(); sets > 0 {
				line += fmt.Sprintf("  %d sets", sets)
			}
			if wait := st.Session.WaitAfterSeconds; wait > 0 {
				line += "  wait " + fmtSeconds(wait)
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}
}

func fmtSeconds(secs int) string {
	return (time.Duration(secs) * time.Second).String()
}

func seedCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <profiles.yaml>",
		Short: "Load user profiles into the configured Postgres database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := setup(ctx, flags, "stderr")
			if err != nil {
				return err
			}
			defer d.Close()

			pg, ok := d.store.(*postgres.Store)
			if !ok {
				return fmt.Errorf("seed needs a database: set %s", config.EnvDatabaseURL)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			profiles, err := storage.ParseProfiles(f)
			if err != nil {
				return err
			}
			for i := range profiles.Users {
				if err := pg.Seed(ctx, &profiles.Users[i]); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d user(s)\n", len(profiles.Users))
			return nil
		},
	}
}

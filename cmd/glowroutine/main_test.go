package main

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/glowroutine/internal/domain"
)

func TestRootCommands(t *testing.T) {
	cmd := rootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "sections", "seed", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestSectionsCommandJSON(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("NATS_URL", "")
	chdir(t, t.TempDir())

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sections", "--user", "demo", "--section", "morning", "--json", "--log-level", "off"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"name": "morning"`)
	assert.Contains(t, out.String(), domain.WashFaceID)
}

func TestSeedNeedsDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	chdir(t, t.TempDir())

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"seed", "profiles.yaml", "--log-level", "off"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestPrintSections(t *testing.T) {
	order := 10
	sections := []domain.RoutineSection{{
		Name:              domain.SectionEvening,
		EstimatedDuration: 90,
		Steps: []domain.RoutineStep{
			{ID: "wash_face", Type: domain.StepBase, DisplayName: "Wash face", RoutineOrder: &order},
			{ID: "retinol", Type: domain.StepIngredient, DisplayName: "Retinol", IsPending: true,
				Session: domain.SessionAction{WaitAfterSeconds: 60}},
		},
	}}

	var out bytes.Buffer
	printSections(&out, sections)
	text := out.String()
	assert.Contains(t, text, "evening (~1m30s, 10 XP)")
	assert.Contains(t, text, "1. Wash face")
	assert.Contains(t, text, "2. Retinol  [not confirmed yet]  wait 1m0s")

	out.Reset()
	printSections(&out, nil)
	assert.Contains(t, out.String(), "No routine yet")
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

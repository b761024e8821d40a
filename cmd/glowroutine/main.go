// GlowRoutine: a skincare and face-exercise routine player.
//
// Usage:
//
//	glowroutine run [--user demo]      interactive terminal player
//	glowroutine serve                  HTTP API + deferral reminders
//	glowroutine sections [--user demo] print today's routine
//	glowroutine seed <profiles.yaml>   load user profiles into Postgres
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const appName = "glowroutine"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configPath string
	logLevel   string
	logFile    string
	jsonLogs   bool
}

func rootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Skincare and face-exercise routine player",
		Long: `GlowRoutine builds a morning, evening and exercise routine from the
products and exercises a user has picked, then walks them through it step
by step with wait timers between products, XP for every step and reminders
for products they are still waiting on.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file path (YAML)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: off, normal, verbose (overrides config)")
	pf.StringVar(&flags.logFile, "log-file", "", "file to write logs to (use \"stderr\" to log to console)")
	pf.BoolVar(&flags.jsonLogs, "json-logs", false, "write logs as JSON")

	cmd.AddCommand(
		runCmd(&flags),
		serveCmd(&flags),
		sectionsCmd(&flags),
		seedCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s (commit: %s, built: %s)\n", appName, Version, Commit, BuildDate)
			},
		},
	)

	return cmd
}

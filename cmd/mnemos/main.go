// Command mnemos runs the Mnemos second-brain server and its operator
// tooling: a single cobra-rooted CLI binary that serves the WebSocket chat
// transport plus a handful of maintenance and capture commands an operator
// runs against its store directly.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemos/mnemos/pkg/config"
	"github.com/mnemos/mnemos/pkg/log"
)

var cfgPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mnemos",
	Short: "Mnemos - an encrypted, self-hosted second brain",
	Long: `Mnemos captures notes, files, and conversations into an
encrypted vault, indexes them for both exact and semantic search, and
answers questions over them through a retrieval-augmented chat.

All content is encrypted at rest; only an unlocked session can read or
write it.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML config file (optional; MNEMOS_* env vars and defaults apply regardless)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(testamentCmd)
	rootCmd.AddCommand(heartbeatCmd)
	rootCmd.AddCommand(vaultCmd)
	rootCmd.AddCommand(schedulerCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// loadConfig loads defaults, then the YAML file at the flag-provided config
// path, then MNEMOS_* environment overrides, each stage overriding the last.
func loadConfig() (config.Config, error) {
	return config.Load(cfgPath)
}

// readPassphrase reads a single line from stdin without echo suppression
// (the pack carries no terminal-raw-mode dependency to ground one on);
// operators running mnemos interactively should prefer piping the
// passphrase from a password manager over typing it at a visible
// terminal.
func readPassphrase(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

func passphraseFromEnvOrPrompt(ctx context.Context, prompt string) ([]byte, error) {
	if v, ok := os.LookupEnv("MNEMOS_PASSPHRASE"); ok {
		return []byte(v), nil
	}
	return readPassphrase(prompt)
}

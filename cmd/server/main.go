package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

// envInt is envDefault for integer settings. Unparseable values are ignored.
func envInt(envVar string, fallback int) int {
	if n, ok := lookupEnvInt(envVar); ok {
		return n
	}
	return fallback
}

// lookupEnvInt reports the integer value of envVar, if set and valid.
func lookupEnvInt(envVar string) (int, bool) {
	v := os.Getenv(envVar)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "gemscraft",
		Short: "Minecraft Classic server",
		Long: `GemsCraft is a Minecraft Classic server with Classic Protocol
Extension (CPE) support.

Environment variables (used as defaults when flags are not set):
  GEMSCRAFT_CONF       Path to server config file (.yaml or .toml)
  GEMSCRAFT_PORT       TCP port to listen on
  GEMSCRAFT_TEXTDIR    Path to text files directory
  GEMSCRAFT_CLIENTDB   Path to the client database (bbolt)
  GEMSCRAFT_LOG_LEVEL  Log level (debug, info, warn, error)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		wrapCmd(),
		versionCmd(),
		backupCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		confFile string
		port     int
		textDir  string
		clientDB string
		logLevel string
		web      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := server.DefaultServerConf()
			if confFile != "" {
				var err error
				if conf, err = server.LoadServerConf(confFile); err != nil {
					return err
				}
			}

			// Flags override the config file.
			if portOverridden(cmd.Flags().Changed("port")) {
				conf.Port = port
			}
			if textDir != "" {
				conf.TextDir = textDir
			}
			if clientDB != "" {
				conf.ClientDB = clientDB
			}
			if logLevel != "" {
				conf.LogLevel = logLevel
			}
			if cmd.Flags().Changed("web") {
				conf.WebEnabled = web
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			server.InitLogger(conf.LogLevel, os.Stdout)
			log.Info().Msgf("Welcome to %s", server.VersionString())

			srv, err := server.NewServer(conf)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				return err
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&confFile, "conf", "c", envDefault("GEMSCRAFT_CONF", ""), "Path to server config file (env: GEMSCRAFT_CONF)")
	cmd.Flags().IntVarP(&port, "port", "p", envInt("GEMSCRAFT_PORT", 25565), "TCP port, overrides config (env: GEMSCRAFT_PORT)")
	cmd.Flags().StringVar(&textDir, "textdir", envDefault("GEMSCRAFT_TEXTDIR", ""), "Path to text files directory (env: GEMSCRAFT_TEXTDIR)")
	cmd.Flags().StringVar(&clientDB, "clientdb", envDefault("GEMSCRAFT_CLIENTDB", ""), "Path to client database (env: GEMSCRAFT_CLIENTDB)")
	cmd.Flags().StringVar(&logLevel, "log-level", envDefault("GEMSCRAFT_LOG_LEVEL", ""), "Log level (env: GEMSCRAFT_LOG_LEVEL)")
	cmd.Flags().BoolVar(&web, "web", false, "Enable the HTTP side server")

	return cmd
}

// portOverridden reports whether --port or a valid GEMSCRAFT_PORT should
// replace the configured port.
func portOverridden(flagSet bool) bool {
	if flagSet {
		return true
	}
	_, ok := lookupEnvInt("GEMSCRAFT_PORT")
	return ok
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/archive"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/clientstore"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/server"
)

func backupCmd() *cobra.Command {
	var confFile string

	loadConf := func() (*server.ServerConf, error) {
		if confFile == "" {
			return server.DefaultServerConf(), nil
		}
		return server.LoadServerConf(confFile)
	}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive the client database, text files and config",
		Long: `Write a .tar.gz archive to the configured archive directory. The
server must not be running against the same client database, since bbolt
holds an exclusive lock on it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf()
			if err != nil {
				return err
			}
			server.InitLogger("warn", os.Stderr)

			srv, err := server.NewServer(conf)
			if err != nil {
				return err
			}
			if conf.ClientDB != "" {
				store, err := clientstore.Open(conf.ClientDB)
				if err != nil {
					return err
				}
				defer store.Close()
				srv.Store = store
			}

			path, err := srv.Archive()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&confFile, "conf", "c", envDefault("GEMSCRAFT_CONF", ""), "Path to server config file (env: GEMSCRAFT_CONF)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List archives, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConf()
			if err != nil {
				return err
			}
			archives, err := archive.ListArchives(conf.ArchiveDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(archives) == 0 {
				fmt.Fprintf(out, "No archives in %s\n", conf.ArchiveDir)
				return nil
			}
			for _, a := range archives {
				fmt.Fprintf(out, "%-32s %20s %8d bytes %4d clients\n", a.Filename, a.Timestamp, a.Size, a.Clients)
			}
			return nil
		},
	}

	verify := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check archive contents against the manifest checksums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bad, err := archive.Verify(args[0])
			if err != nil {
				return err
			}
			if len(bad) > 0 {
				for _, name := range bad {
					fmt.Fprintf(cmd.ErrOrStderr(), "checksum mismatch: %s\n", name)
				}
				return fmt.Errorf("%d damaged entries in %s", len(bad), args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, verify)
	return cmd
}

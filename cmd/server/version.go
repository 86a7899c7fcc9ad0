package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/cpe"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/server"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, server.Version)
				return
			}
			fmt.Fprintln(out, server.VersionString())
			fmt.Fprintf(out, "  Extensions: %d\n", len(cpe.ServerExtensions))
			fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}

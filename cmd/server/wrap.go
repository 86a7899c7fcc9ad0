package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/chat"
	"github.com/apotter96/GemsCraft-Classic-sub000/pkg/protocol"
)

// wrapCmd prints the chat lines a message is split into, one per packet.
func wrapCmd() *cobra.Command {
	var (
		prefix    string
		fullCP437 bool
		msgType   uint8
		strip     bool
	)

	cmd := &cobra.Command{
		Use:   "wrap <text>...",
		Short: "Show how a chat message is split into packets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := chat.Options{
				Prefix:       prefix,
				Type:         protocol.MessageType(msgType),
				MessageTypes: msgType != 0,
				FullCP437:    fullCP437,
			}
			if len(chat.Encode(prefix, fullCP437)) > chat.MaxPrefixSize {
				return fmt.Errorf("prefix is longer than %d bytes", chat.MaxPrefixSize)
			}

			out := cmd.OutOrStdout()
			for p := range chat.Wrap(strings.Join(args, " "), opts) {
				line := chat.Decode([]byte(chat.Payload(p)))
				if strip {
					line = chat.StripColors(line)
				}
				fmt.Fprintf(out, "[%3d] %q\n", p.Bytes()[1], line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", chat.DefaultPrefix, "Prefix for continuation lines")
	cmd.Flags().BoolVar(&fullCP437, "full-cp437", false, "Keep code page 437 glyphs instead of ASCII fallbacks")
	cmd.Flags().Uint8Var(&msgType, "type", 0, "Message type (0 = chat)")
	cmd.Flags().BoolVar(&strip, "strip", false, "Remove color escapes from the output")

	return cmd
}

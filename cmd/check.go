package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/httprunner/adbpair/pkg/pairing"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that adb can discover Wi-Fi devices",
		Long:  "Runs `adb mdns check` once and reports whether Wi-Fi pairing is usable on this host.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return userError(err)
			}
			defer client.Close()

			outcome, version, err := client.Probe(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if outcome != pairing.MdnsReady {
				return errors.New(outcome.Kind().Message())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "adb mdns daemon ready (version %s)\n", version)
			return nil
		},
	}
}

// userError prefixes typed pairing errors with their user-facing message.
func userError(err error) error {
	if err == nil {
		return nil
	}
	kind := pairing.KindOf(err)
	if kind == pairing.KindUnknown {
		return err
	}
	return fmt.Errorf("%s (%w)", kind.Message(), err)
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/httprunner/adbpair/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		flagLimit int
		flagJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded pairing sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return userError(err)
			}
			defer client.Close()

			entries, err := client.History(cmd.Context(), flagLimit)
			if err != nil {
				return err
			}
			if flagJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			printHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "max sessions to show, 0 for all")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "print entries as JSON")
	return cmd
}

func printHistory(out io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No pairing sessions recorded")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tKIND\tSERVICE\tSTATE\tDEVICE\tELAPSED\tERROR")
	for _, e := range entries {
		device := firstNonEmpty(e.DeviceName, e.DeviceSerial, "-")
		elapsed := "-"
		if e.Elapsed > 0 {
			elapsed = e.Elapsed.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.Kind, e.ServiceName, e.State,
			device, elapsed, firstNonEmpty(e.ErrorKind, "-"))
	}
	_ = w.Flush()
}

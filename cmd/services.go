package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/httprunner/adbpair/pkg/pairing"
)

func newServicesCmd() *cobra.Command {
	var flagWatch bool

	cmd := &cobra.Command{
		Use:   "services",
		Short: "List devices offering Wi-Fi pairing",
		Long:  "Runs `adb mdns services` and lists the pairing services; with --watch keeps polling and prints changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return userError(err)
			}
			defer client.Close()
			out := cmd.OutOrStdout()

			if !flagWatch {
				services, err := client.DiscoverServices(cmd.Context())
				if err != nil {
					return err
				}
				printServices(out, services)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			poller := pairing.NewDiscoveryPoller(client.Executor(), nil)
			err = poller.Start(ctx, settings.PollInterval, pairing.DiscoveryCallbacks{
				OnArrive: func(svc pairing.MdnsService) {
					fmt.Fprintf(out, "+ %s\t%s\t%s\n", svc.ServiceName, svc.ServiceType, svc.Endpoint())
				},
				OnUpdate: func(svc pairing.MdnsService) {
					fmt.Fprintf(out, "~ %s\t%s\t%s\n", svc.ServiceName, svc.ServiceType, svc.Endpoint())
				},
				OnDepart: func(svc pairing.MdnsService) {
					fmt.Fprintf(out, "- %s\n", svc.ServiceName)
				},
			})
			if err != nil {
				return err
			}
			log.Info().Dur("poll_interval", settings.PollInterval).Msg("watching pairing services, press Ctrl-C to stop")
			<-ctx.Done()
			poller.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagWatch, "watch", false, "keep polling and print arrivals and departures")
	return cmd
}

func printServices(out io.Writer, services []pairing.MdnsService) {
	if len(services) == 0 {
		fmt.Fprintln(out, "No devices offering Wi-Fi pairing found")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tNAME\tTYPE\tENDPOINT")
	for i, svc := range services {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, svc.ServiceName, svc.ServiceType, svc.Endpoint())
	}
	_ = w.Flush()
}

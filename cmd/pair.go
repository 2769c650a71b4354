package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/httprunner/adbpair"
	"github.com/httprunner/adbpair/pkg/pairing"
)

const shutdownGracePeriod = 5 * time.Second

func newPairCmd() *cobra.Command {
	var (
		flagService       string
		flagCode          string
		flagTimeout       time.Duration
		flagNoInteractive bool
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair a device over Wi-Fi with a QR code or a pairing code",
		Long: `Shows a QR code payload to scan from Developer options > Wireless debugging > Pair device with QR code,
and lists devices offering pairing-code pairing. Type "pair <#> <code>" at the prompt, or pass --code
(and optionally --service) to pair without prompting. Exits once a device is connected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code := strings.TrimSpace(flagCode)
			if code != "" {
				normalized, err := pairing.NormalizePairingCode(code)
				if err != nil {
					return err
				}
				code = normalized
			}

			client, err := newClient()
			if err != nil {
				return userError(err)
			}
			defer client.Close()
			orch, err := client.NewOrchestrator()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			timeout := firstPositive(flagTimeout, settings.PairingTimeout)
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			run := &pairRun{
				orch:    orch,
				out:     cmd.OutOrStdout(),
				service: strings.TrimSpace(flagService),
				code:    code,
			}
			interactive := !flagNoInteractive && code == "" && isatty.IsTerminal(os.Stdin.Fd())
			var prompt *pairPrompt
			if interactive {
				prompt, err = newPairPrompt(orch)
				if err != nil {
					return err
				}
				run.out = prompt.Stdout()
				run.prompt = prompt
			}

			if err := orch.Start(ctx); err != nil {
				return err
			}
			sg := adbpair.NewSafeGroup(ctx)
			sg.GoSafe("pair-events", run.consume)
			if prompt != nil {
				sg.GoSafe("pair-prompt", prompt.Run)
			}
			waitErr := sg.WaitOrInterrupt(shutdownGracePeriod)
			_ = orch.Close()
			// the event reader may have been abandoned by the grace period
			orch.DiscardEvents()

			if device := run.connected(); device != nil {
				return nil
			}
			if err := run.err(); err != nil {
				return userError(err)
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no device paired within %s", timeout)
			}
			if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
				return waitErr
			}
			log.Info().Msg("pairing cancelled")
			return nil
		},
	}
	cmd.Flags().StringVar(&flagService, "service", "", "pairing service name to use with --code (default: first discovered)")
	cmd.Flags().StringVar(&flagCode, "code", "", "6-digit pairing code shown on the phone")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "give up after this long (overrides ADBPAIR_PAIRING_TIMEOUT)")
	cmd.Flags().BoolVar(&flagNoInteractive, "no-interactive", false, "never prompt, even on a terminal")
	return cmd
}

// pairRun prints orchestrator events and submits the --code when its service shows up.
type pairRun struct {
	orch    *pairing.Orchestrator
	out     io.Writer
	service string
	code    string
	prompt  *pairPrompt

	submitted bool

	mu      sync.Mutex
	device  *pairing.OnlineDevice
	failure error
}

func (r *pairRun) consume(ctx context.Context) error {
	defer func() {
		if r.prompt != nil {
			_ = r.prompt.Close()
		}
	}()
	for ev := range r.orch.Events() {
		if line := describeEvent(ev); line != "" {
			fmt.Fprintln(r.out, line)
		}
		switch ev.Type {
		case pairing.EventServiceDiscovered:
			r.maybeSubmit(ctx, *ev.Service)
		case pairing.EventSessionState:
			r.onSession(*ev.Session)
		case pairing.EventFailed:
			r.fail(ev.Err)
		}
	}
	return nil
}

func (r *pairRun) maybeSubmit(ctx context.Context, svc pairing.MdnsService) {
	if r.code == "" || r.submitted {
		return
	}
	if r.service != "" && svc.ServiceName != r.service {
		return
	}
	r.submitted = true
	id, err := r.orch.SubmitPairingCode(ctx, svc.ServiceName, r.code)
	if err != nil {
		r.fail(err)
		go r.orch.Close()
		return
	}
	log.Debug().Str("session", id).Str("service", svc.ServiceName).Msg("pairing code submitted")
}

func (r *pairRun) onSession(info pairing.SessionInfo) {
	switch info.State {
	case pairing.StateSucceeded:
		r.mu.Lock()
		r.device = info.Device
		r.mu.Unlock()
		go r.orch.Close()
	case pairing.StateFailed:
		// without a prompt a wrong --code cannot be corrected
		if info.Kind == pairing.ServiceTypePairingCode && r.prompt == nil && pairing.KindOf(info.Err) != pairing.KindCancelled {
			r.fail(info.Err)
			go r.orch.Close()
		}
	}
}

func (r *pairRun) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		r.failure = err
	}
}

func (r *pairRun) connected() *pairing.OnlineDevice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device
}

func (r *pairRun) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// describeEvent renders an event for the terminal; "" means nothing to print.
func describeEvent(ev pairing.Event) string {
	switch ev.Type {
	case pairing.EventMdnsReady:
		return fmt.Sprintf("adb mdns daemon ready (version %s)", ev.DaemonVersion)
	case pairing.EventQrCodeReady:
		return "Scan a QR code encoding this payload from Wireless debugging > Pair device with QR code:\n\n  " +
			ev.Secret.PairingPayload + "\n"
	case pairing.EventServiceDiscovered:
		return fmt.Sprintf("Found %s at %s, pair it with: pair %s <code>",
			ev.Service.ServiceName, ev.Service.Endpoint(), ev.Service.ServiceName)
	case pairing.EventServiceUpdated:
		return fmt.Sprintf("%s moved to %s", ev.Service.ServiceName, ev.Service.Endpoint())
	case pairing.EventServiceLost:
		return fmt.Sprintf("%s is no longer available", ev.Service.ServiceName)
	case pairing.EventSessionState:
		info := ev.Session
		switch info.State {
		case pairing.StatePairing:
			return fmt.Sprintf("Pairing with %s at %s...", info.Service.ServiceName, info.Service.Endpoint())
		case pairing.StateWaitingForDevice:
			if info.Result == nil {
				return "Paired, waiting for the device to come online..."
			}
			return fmt.Sprintf("Paired, waiting for %s to come online...", info.Result.Endpoint())
		case pairing.StateSucceeded:
			name := info.Service.ServiceName
			if info.Device != nil {
				name = info.Device.DisplayString()
			}
			return fmt.Sprintf("%s connected over Wi-Fi\nThe device is now available to use.", name)
		case pairing.StateFailed:
			return fmt.Sprintf("Pairing with %s failed: %s", info.Service.ServiceName, pairing.KindOf(info.Err).Message())
		}
	case pairing.EventFailed:
		return pairing.KindOf(ev.Err).Message()
	}
	return ""
}

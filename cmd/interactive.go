package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/httprunner/adbpair/pkg/pairing"
)

// serviceLister is the part of the orchestrator the prompt needs to list and pair.
type serviceLister interface {
	Services() []pairing.MdnsService
	SubmitPairingCode(ctx context.Context, serviceName, code string) (string, error)
	Close() error
}

// pairPrompt is the interactive "adbpair>" command loop shown while pairing.
type pairPrompt struct {
	rl   *readline.Instance
	orch serviceLister
}

func newPairPrompt(orch serviceLister) (*pairPrompt, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "adbpair> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &pairPrompt{rl: rl, orch: orch}, nil
}

// Stdout returns a writer that does not clobber the prompt line.
func (p *pairPrompt) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Close unblocks a pending Readline.
func (p *pairPrompt) Close() error {
	return p.rl.Close()
}

// Run reads commands until quit, EOF, a second ^C on an empty line, or Close.
func (p *pairPrompt) Run(ctx context.Context) error {
	defer p.rl.Close()
	defer p.orch.Close()

	p.printHelp()
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := p.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt && line != "" {
				continue
			}
			return nil
		}
		if quit := runPromptCommand(ctx, p.rl.Stdout(), p.orch, strings.Fields(line)); quit {
			return nil
		}
	}
}

func (p *pairPrompt) printHelp() {
	printPromptHelp(p.rl.Stdout())
}

func printPromptHelp(w io.Writer) {
	fmt.Fprintln(w, `
Commands:
  services               - List devices offering pairing-code pairing
  pair <#|name> <code>   - Pair with a listed device using its 6-digit code
  help                   - Show this help
  quit                   - Stop pairing`)
}

// runPromptCommand executes one prompt line and reports whether to quit.
func runPromptCommand(ctx context.Context, w io.Writer, orch serviceLister, fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		printPromptHelp(w)
	case "services", "ls":
		services := orch.Services()
		if len(services) == 0 {
			fmt.Fprintln(w, "No devices found yet. Open Wireless debugging > Pair device with pairing code on the phone.")
			return false
		}
		for i, svc := range services {
			fmt.Fprintf(w, "  %d) %s  %s\n", i+1, svc.ServiceName, svc.Endpoint())
		}
	case "pair", "p":
		if len(fields) != 3 {
			fmt.Fprintln(w, "Usage: pair <#|name> <code>")
			return false
		}
		name, err := resolveServiceArg(orch.Services(), fields[1])
		if err != nil {
			fmt.Fprintln(w, err)
			return false
		}
		if _, err := orch.SubmitPairingCode(ctx, name, fields[2]); err != nil {
			fmt.Fprintf(w, "Cannot pair with %s: %v\n", name, err)
		}
	case "quit", "exit", "q":
		fmt.Fprintln(w, "Exiting...")
		return true
	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", fields[0])
	}
	return false
}

// resolveServiceArg accepts a 1-based index into services or a service name.
func resolveServiceArg(services []pairing.MdnsService, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(services) {
			return "", fmt.Errorf("no device #%d, type 'services' to list them", n)
		}
		return services[n-1].ServiceName, nil
	}
	for _, svc := range services {
		if svc.ServiceName == arg {
			return svc.ServiceName, nil
		}
	}
	return "", fmt.Errorf("unknown device %q, type 'services' to list them", arg)
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/backtrack/go/clients/backtrack_client"
	"github.com/mcdev12/backtrack/go/clients/pushchannel"
	"github.com/mcdev12/backtrack/go/internal/checkin/countdown"
	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

// sessionHandler feeds push channel events to the manager. Every (re)connect
// resyncs the owner's session, and the first one also sends a pending start.
type sessionHandler struct {
	manager *countdown.Manager
	owner   string

	startOnce sync.Once
	start     *countdown.StartRequest
	out       io.Writer
}

func (h *sessionHandler) HandleEvent(env *events.Envelope) { h.manager.HandleEvent(env) }

func (h *sessionHandler) HandleDisconnect() { h.manager.HandleDisconnect() }

func (h *sessionHandler) HandleReconnect() {
	if err := h.manager.Sync(h.owner); err != nil {
		log.Warn().Err(err).Msg("failed to sync timer")
	}
	if h.start == nil {
		return
	}
	h.startOnce.Do(func() {
		if err := h.manager.Start(*h.start); err != nil {
			_, _ = fmt.Fprintf(h.out, "start failed: %v\n", err)
		}
	})
}

func newTimerCmd(opts *globalOptions) *cobra.Command {
	var (
		minutes     float64
		watchers    []string
		destination string
	)

	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Follow your check-in timer live, optionally starting one",
		Long: `Connects to the push channel and shows the countdown.

Commands read from stdin:
  extend <minutes>   add time to the running timer
  cancel             check in safely and stop the timer
  ack                dismiss an expired timer
  status             print the current countdown
  quit               disconnect`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, creds, err := authedClient(opts)
			if err != nil {
				return err
			}
			api := creds.API
			if api == "" {
				api = opts.api
			}
			wsURL, err := backtrack_client.CheckInURL(api)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			channel := pushchannel.New(pushchannel.DefaultConfig(wsURL, creds.Token))
			manager := countdown.NewManager(channel, nil)
			out := cmd.OutOrStdout()

			var (
				printMu   sync.Mutex
				lastState countdown.State
			)
			manager.OnChange(func(snap countdown.Snapshot) {
				printMu.Lock()
				defer printMu.Unlock()
				// Print state changes and whole minutes only
				if snap.State == lastState && snap.RemainingSeconds != nil && *snap.RemainingSeconds%60 != 0 {
					return
				}
				lastState = snap.State
				_, _ = fmt.Fprintln(out, formatSnapshot(snap))
			})
			manager.OnFriendAlert(func(alert events.FriendAlertPayload) {
				_, _ = fmt.Fprintf(out, "ALERT: %s did not check in at %s (due %s)\n",
					alert.OwnerUsername, alert.Destination, alert.ExpiredAt.Local().Format(time.Kitchen))
			})

			handler := &sessionHandler{manager: manager, owner: creds.Username, out: out}
			if cmd.Flags().Changed("minutes") {
				handler.start = &countdown.StartRequest{
					Minutes:     minutes,
					Watchers:    watchers,
					Destination: destination,
					Owner:       creds.Username,
				}
			}

			go manager.Run(ctx)
			go func() {
				if err := channel.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("push channel stopped")
				}
			}()

			return readCommands(ctx, stop, cmd.InOrStdin(), out, manager, creds.Username)
		},
	}
	cmd.Flags().Float64Var(&minutes, "minutes", 0, "start a timer of this many minutes")
	cmd.Flags().StringSliceVar(&watchers, "watchers", nil, "friends alerted if the timer expires")
	cmd.Flags().StringVar(&destination, "destination", "", "where you are heading")
	return cmd
}

// readCommands applies stdin commands until quit, EOF or ctx is cancelled
func readCommands(ctx context.Context, stop func(), in io.Reader, out io.Writer, manager *countdown.Manager, owner string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				_, _ = fmt.Fprintln(out, err)
				continue
			}
			if c.name == "quit" {
				stop()
				return nil
			}
			if err := applyCommand(c, manager, owner); err != nil {
				_, _ = fmt.Fprintf(out, "%s: %v\n", c.name, err)
				continue
			}
			if c.name == "status" {
				_, _ = fmt.Fprintln(out, formatSnapshot(manager.Snapshot()))
			}
		}
	}
}

type command struct {
	name    string
	minutes float64
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, errors.New("empty command")
	}

	switch fields[0] {
	case "extend":
		if len(fields) != 2 {
			return command{}, errors.New("usage: extend <minutes>")
		}
		m, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return command{}, fmt.Errorf("invalid minutes %q", fields[1])
		}
		return command{name: "extend", minutes: m}, nil
	case "cancel", "ack", "status", "quit":
		if len(fields) != 1 {
			return command{}, fmt.Errorf("%s takes no arguments", fields[0])
		}
		return command{name: fields[0]}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

func applyCommand(c command, manager *countdown.Manager, owner string) error {
	switch c.name {
	case "extend":
		return manager.Extend(c.minutes, owner)
	case "cancel":
		manager.Cancel(countdown.CancelRequest{Owner: owner})
	case "ack":
		manager.Acknowledge(owner)
	}
	return nil
}

func formatSnapshot(snap countdown.Snapshot) string {
	var b strings.Builder
	b.WriteString(string(snap.State))
	if snap.RemainingSeconds != nil {
		b.WriteString(" ")
		b.WriteString(formatDuration(*snap.RemainingSeconds))
		if *snap.RemainingSeconds == 0 && snap.State == countdown.StateRunning {
			b.WriteString(" (expiring)")
		}
	}
	if snap.Stale {
		b.WriteString(" [reconnecting]")
	}
	return b.String()
}

// formatDuration renders seconds as m:ss or h:mm:ss
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/vuai/assistant/gateway"
)

// errChecksFailed is returned by the probe command when any check fails.
var errChecksFailed = errors.New("system status: ISSUES")

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "probe",
		Short: "Check the store and chat backend",
		Long:  "Ping the configured store and send a short greeting to the selected chat backend, then print a report.",
		Args:  cobra.NoArgs,
		RunE:  runProbe,
	})
}

func runProbe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st := openStore(ctx, cfg.Store, logger)
	defer st.Close()
	gw := gateway.Select(ctx, cfg.LLM, logger)

	report := runChecks(ctx, st, gw, cfg.LLM.ProbeTimeout)
	report.print(cmd.OutOrStdout())
	if !report.ok() {
		return errChecksFailed
	}
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

type prober interface {
	Probe(ctx context.Context, timeout time.Duration) error
	Offline() bool
	Provider() string
	Model() string
}

type check struct {
	name   string
	ok     bool
	detail string
}

type checkReport struct {
	checks []check
}

func (r checkReport) ok() bool {
	for _, c := range r.checks {
		if !c.ok {
			return false
		}
	}
	return true
}

func (r checkReport) print(w io.Writer) {
	for _, c := range r.checks {
		mark := "OK"
		if !c.ok {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", mark, c.name, c.detail)
	}
	if r.ok() {
		fmt.Fprintln(w, "system status: OK")
	} else {
		fmt.Fprintln(w, errChecksFailed.Error())
	}
}

// runChecks pings the store and probes the chat backend. An offline
// backend is reported as a failure without being called.
func runChecks(ctx context.Context, st pinger, backend prober, probeTimeout time.Duration) checkReport {
	var report checkReport

	pingCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	err := st.Ping(pingCtx)
	cancel()
	if err != nil {
		report.checks = append(report.checks, check{name: "database", detail: err.Error()})
	} else {
		report.checks = append(report.checks, check{name: "database", ok: true, detail: "connected"})
	}

	label := backend.Provider() + "/" + backend.Model()
	switch {
	case backend.Offline():
		report.checks = append(report.checks, check{name: "llm", detail: "fallback mode (offline replies)"})
	default:
		if err := backend.Probe(ctx, probeTimeout); err != nil {
			report.checks = append(report.checks, check{name: "llm", detail: err.Error()})
		} else {
			report.checks = append(report.checks, check{name: "llm", ok: true, detail: label + " responded"})
		}
	}
	return report
}

// statusTimeout bounds the store ping.
const statusTimeout = 5 * time.Second

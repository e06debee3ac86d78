// Command playbooksd is an example host process for the playbooks runtime:
// it wires a Program together with a trivial echo AgentExecutor, the
// Prometheus metrics handler, the SQLite audit trail, and the housekeeping
// janitor, then runs until SIGINT/SIGTERM. It exists to demonstrate wiring
// one host around Program (spec §6.5), not as a product in itself.
//
// Grounded on the teacher's cmd/server/main.go: flag parsing, a dual
// console+file logger initialized up front, and a signal channel driving
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/playbooks-ai/playbooks-runtime/internal/agentruntime"
	"github.com/playbooks-ai/playbooks-runtime/internal/audit"
	"github.com/playbooks-ai/playbooks-runtime/internal/config"
	"github.com/playbooks-ai/playbooks-runtime/internal/housekeeping"
	"github.com/playbooks-ai/playbooks-runtime/internal/inbox"
	"github.com/playbooks-ai/playbooks-runtime/internal/logger"
	"github.com/playbooks-ai/playbooks-runtime/internal/metrics"
	"github.com/playbooks-ai/playbooks-runtime/internal/program"
	"github.com/playbooks-ai/playbooks-runtime/internal/ratelimit"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Playbooks home directory (default: ~/.playbooks)")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus /metrics on (empty disables)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("playbooksd %s\n", Version)
		return
	}

	homeDir := *dirFlag
	if homeDir == "" {
		if hd, err := os.UserHomeDir(); err == nil {
			homeDir = hd + "/.playbooks"
		} else {
			homeDir = ".playbooks"
		}
	}

	if err := logger.Init(homeDir + "/logs"); err != nil {
		fmt.Fprintf(os.Stderr, "playbooksd: logger init: %v\n", err)
		os.Exit(program.ExitError)
	}
	defer logger.Close()
	if err := logger.InitSlog(homeDir+"/logs", false); err != nil {
		logger.Error("playbooksd: structured logger init: %v", err)
	}

	cfg, err := config.LoadAll(*dirFlag)
	if err != nil {
		logger.Error("playbooksd: config load: %v", err)
		os.Exit(program.ExitError)
	}

	auditLog, err := audit.Open(homeDir + "/data")
	if err != nil {
		logger.Error("playbooksd: audit open: %v", err)
		os.Exit(program.ExitError)
	}
	defer auditLog.Close()

	code := run(cfg, homeDir, auditLog, *metricsAddr)
	os.Exit(code)
}

func run(cfg *config.LoadedConfig, homeDir string, auditLog *audit.Logger, metricsAddr string) int {
	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	p := program.New().WithLimiter(limiter)
	unsubAudit := auditLog.Subscribe(p.Bus)
	defer unsubAudit()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("playbooksd: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	janitor, err := housekeeping.New(p, housekeeping.Options{
		Interval:         cfg.Housekeeping.Interval(),
		CronExpr:         cfg.Housekeeping.CronExpr,
		ChannelIdleFor:   cfg.Housekeeping.ChannelIdleFor(),
		MeetingRetention: cfg.Housekeeping.MeetingRetention(),
	})
	if err != nil {
		logger.Error("playbooksd: housekeeping init: %v", err)
		return program.ExitError
	}
	janitor.Start()
	defer janitor.Stop()

	if err := p.Initialize([]program.AgentDefinition{
		{
			Klass:    "Echo",
			Kind:     agentruntime.AI,
			Executor: agentruntime.AgentExecutorFunc(echoExecutor),
		},
	}); err != nil {
		logger.Error("playbooksd: program initialize: %v", err)
		return program.ExitError
	}
	if _, err := p.CreateAgent("Echo"); err != nil {
		logger.Error("playbooksd: creating Echo agent: %v", err)
		return program.ExitError
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan int, 1)
	go func() { done <- p.RunTillExit() }()

	select {
	case code := <-done:
		return code
	case sig := <-shutdown:
		logger.Info("playbooksd: received %s, shutting down", sig)
		p.Stop("signal", program.ExitNormal)
		return <-done
	}
}

// echoExecutor waits for a direct message from the human user (it yields
// ForUser) and replies to the sender with the same content, demonstrating the minimal AgentExecutor
// contract (spec §6.1): block via Yield until input arrives, act, yield
// again.
func echoExecutor(ctx context.Context, agent *agentruntime.Agent, msgs []inbox.Message) (agentruntime.RunResult, error) {
	if len(msgs) == 0 {
		return agentruntime.RunResult{
			Effects: []agentruntime.Effect{agentruntime.Yield(agentruntime.ForUser())},
		}, nil
	}

	var effects []agentruntime.Effect
	for _, m := range msgs {
		if m.SenderID == "" || m.SenderID == agent.ID {
			continue
		}
		effects = append(effects, agentruntime.Say("agent "+m.SenderID, "echo: "+m.Content))
	}
	effects = append(effects, agentruntime.Yield(agentruntime.ForUser()))
	return agentruntime.RunResult{Effects: effects}, nil
}

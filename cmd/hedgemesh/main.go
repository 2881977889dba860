package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/hedgemesh/internal/capital"
	"github.com/sawpanic/hedgemesh/internal/config"
	"github.com/sawpanic/hedgemesh/internal/exchange"
	"github.com/sawpanic/hedgemesh/internal/execution"
	"github.com/sawpanic/hedgemesh/internal/httpapi"
	"github.com/sawpanic/hedgemesh/internal/marketdata"
	"github.com/sawpanic/hedgemesh/internal/marketdata/depthcache"
	"github.com/sawpanic/hedgemesh/internal/marketdata/wsfeed"
	"github.com/sawpanic/hedgemesh/internal/persistence"
	"github.com/sawpanic/hedgemesh/internal/persistence/postgres"
	"github.com/sawpanic/hedgemesh/internal/risk"
	"github.com/sawpanic/hedgemesh/internal/scheduler"
	"github.com/sawpanic/hedgemesh/internal/supervisor"
	"github.com/sawpanic/hedgemesh/internal/venue"
)

const (
	appName = "hedgemesh"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "hedgemesh is a multi-exchange perpetual-futures hedge coordinator",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane: scheduler tick loop plus operator HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "config.yaml", "Path to the control plane config file")
	serveCmd.Flags().Duration("tick-interval", time.Second, "Scheduler tick interval")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running control plane's /state endpoint",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("addr", "http://127.0.0.1:8080", "Operator HTTP API base address")

	killCmd := &cobra.Command{
		Use:   "kill",
		Short: "Engage the kill switch, globally or for one venue",
		RunE:  runKill,
	}
	killCmd.Flags().String("addr", "http://127.0.0.1:8080", "Operator HTTP API base address")
	killCmd.Flags().String("venue", "", "Venue ID to kill; empty means global")

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Release the kill switch, globally or for one venue",
		RunE:  runResume,
	}
	resumeCmd.Flags().String("addr", "http://127.0.0.1:8080", "Operator HTTP API base address")
	resumeCmd.Flags().String("venue", "", "Venue ID to resume; empty means global")

	modeCmd := &cobra.Command{
		Use:   "mode",
		Short: "Switch the risk evaluator's preset mode",
		RunE:  runMode,
	}
	modeCmd.Flags().String("addr", "http://127.0.0.1:8080", "Operator HTTP API base address")
	modeCmd.Flags().String("set", "", "Risk mode to switch to (e.g. conservative, balanced, aggressive)")
	_ = modeCmd.MarkFlagRequired("set")

	rootCmd.AddCommand(serveCmd, statusCmd, killCmd, resumeCmd, modeCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("hedgemesh exited with error")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	tickInterval, _ := cmd.Flags().GetDuration("tick-interval")

	root, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfgStore := config.NewStore(root)

	registry := venue.New()
	for _, v := range root.Venues {
		registry.Register(v)
	}

	riskEval := risk.New(root.Risk)
	coordinator := capital.New(root.Capital, registry)
	sup := supervisor.New(root.Supervisor)
	for _, v := range registry.All() {
		sup.RegisterTrading(v.ID, v.TradeEnabled)
	}

	quotePipeline := marketdata.New(root.Marketdata)
	quotePipeline.SetCache(depthcache.NewAuto(), 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	connectQuoteFeeds(ctx, registry.All(), quotePipeline)

	endpoints := make(map[string]exchange.VenueEndpoint, len(registry.All()))
	for _, v := range registry.All() {
		endpoints[v.ID] = exchange.VenueEndpoint{BaseURL: v.RESTBaseURL}
	}
	adapter := exchange.NewRESTAdapter(endpoints)
	engine := execution.New(root.Execution, adapter, sup)

	dispatcher := newEngineDispatcher(engine, 30*time.Second)
	sched := scheduler.New(root.Scheduler, riskEval, coordinator, dispatcher)

	var (
		jobRepo       persistence.JobRepo
		riskEventRepo persistence.RiskEventRepo
	)
	if root.Postgres.DSN != "" {
		db, err := postgres.Connect(root.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		timeout := time.Duration(root.Postgres.TimeoutSeconds) * time.Second
		jobRepo = postgres.NewJobRepo(db, timeout)
		riskEventRepo = postgres.NewRiskEventRepo(db, timeout)
	}

	srv, err := httpapi.NewServer(serverConfigFromListenAddr(root.HTTP.ListenAddr), httpapi.Deps{
		Scheduler:  sched,
		RiskEval:   riskEval,
		Supervisor: sup,
		CfgStore:   cfgStore,
		CfgPath:    cfgPath,
	})
	if err != nil {
		return fmt.Errorf("starting operator http server: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErr <- err
		}
	}()

	go runTickLoop(ctx, sched, quotePipeline, cfgStore, tickInterval, jobRepo, riskEventRepo)

	log.Info().Str("config", cfgPath).Dur("tick_interval", tickInterval).Msg("hedgemesh control plane started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("operator http server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// stateResponse mirrors internal/httpapi's /state response shape.
type stateResponse struct {
	PendingCount int    `json:"pending_count"`
	RunningCount int    `json:"running_count"`
	RiskMode     string `json:"risk_mode"`
	AutoHalt     bool   `json:"auto_halt"`
}

// connectQuoteFeeds dials a live WebSocket feed for every venue that
// configures one, pushing quotes into pipe. A venue with no
// ws_feed_url gets no feed: the tick loop's market context falls back
// to its flat defaults for that venue, same as before wsfeed existed. A venue
// whose feed fails to dial doesn't block startup for the others — it
// just logs and moves on.
func connectQuoteFeeds(ctx context.Context, venues []venue.Config, pipe *marketdata.Pipeline) {
	for _, v := range venues {
		if v.WSFeedURL == "" {
			continue
		}
		feed := wsfeed.New(v.ID, v.WSFeedURL, pipe)
		if err := feed.Connect(ctx); err != nil {
			log.Warn().Str("venue", v.ID).Str("url", v.WSFeedURL).Err(err).Msg("quote feed failed to connect, falling back to flat defaults")
			continue
		}
		go func(v venue.Config, f *wsfeed.Feed) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-f.Reconnected():
					if ctx.Err() != nil {
						return
					}
					if err := f.Connect(ctx); err != nil {
						log.Warn().Str("venue", v.ID).Err(err).Msg("quote feed reconnect failed")
					}
				}
			}
		}(v, feed)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/state")
	if err != nil {
		return fmt.Errorf("GET %s/state: %w", addr, err)
	}
	defer resp.Body.Close()

	var state stateResponse
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return fmt.Errorf("decoding /state response: %w", err)
	}
	fmt.Printf("pending=%d running=%d risk_mode=%s auto_halt=%t\n",
		state.PendingCount, state.RunningCount, state.RiskMode, state.AutoHalt)
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	venueID, _ := cmd.Flags().GetString("venue")
	return postControl(addr, "/control/kill", map[string]string{"venue": venueID})
}

func runResume(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	venueID, _ := cmd.Flags().GetString("venue")
	return postControl(addr, "/control/resume", map[string]string{"venue": venueID})
}

func runMode(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	mode, _ := cmd.Flags().GetString("set")
	return postControl(addr, "/control/mode", map[string]string{"mode": mode})
}

// postControl POSTs a JSON body to one of the control plane's
// operator endpoints and prints the decoded response.
func postControl(addr, path string, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	client := http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(addr+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("POST %s%s: %w", addr, path, err)
	}
	defer resp.Body.Close()

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	fmt.Printf("%s -> %v\n", path, result)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}

// serverConfigFromListenAddr applies a config-supplied "host:port"
// listen address on top of the operator API's documented defaults.
func serverConfigFromListenAddr(listenAddr string) httpapi.ServerConfig {
	cfg := httpapi.DefaultServerConfig()
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		log.Warn().Str("listen_addr", listenAddr).Err(err).Msg("invalid http listen address, using defaults")
		return cfg
	}
	if host != "" {
		cfg.Host = host
	} else {
		cfg.Host = "0.0.0.0"
	}
	if port, err := strconv.Atoi(portStr); err == nil {
		cfg.Port = port
	}
	return cfg
}

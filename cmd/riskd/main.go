package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/quantrail/riskcore/internal/config"
	"github.com/quantrail/riskcore/internal/engine"
	"github.com/quantrail/riskcore/internal/exchange"
	"github.com/quantrail/riskcore/internal/exchange/bybit"
	"github.com/quantrail/riskcore/internal/logger"
	"github.com/quantrail/riskcore/internal/monitoring"
	"github.com/quantrail/riskcore/internal/notifications"
	"github.com/quantrail/riskcore/internal/portfolio"
	"github.com/quantrail/riskcore/internal/reconciliation"
	"github.com/quantrail/riskcore/internal/risk"
	"github.com/quantrail/riskcore/internal/safety"
)

func main() {
	var (
		envFile  = flag.String("env", ".env", "Environment file path (default: .env)")
		dryRun   = flag.Bool("dry-run", false, "Simulate order placement without touching the exchange")
		equity   = flag.String("equity", "100000", "Initial account equity in USD")
		category = flag.String("category", "spot", "Bybit market category (spot, linear)")
	)
	flag.Parse()

	if err := loadEnvFile(*envFile); err != nil {
		log.Printf("Warning: Could not load .env file (%v), checking environment variables...", err)
	}

	fmt.Println("🛡️ Risk Control Daemon Starting...")

	cfg := config.Load()
	if *dryRun {
		cfg.DryRun = true
	}

	if err := validateCredentials(cfg); err != nil {
		log.Fatalf("Credentials validation failed: %v", err)
	}

	initialEquity, err := decimal.NewFromString(*equity)
	if err != nil || !initialEquity.IsPositive() {
		log.Fatalf("Invalid -equity value %q", *equity)
	}

	appLog, err := logger.NewLogger("riskd")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Close()

	client := bybit.NewClient(bybit.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Demo:      cfg.Exchange.Demo,
		Category:  *category,
	})

	correlations := portfolio.NewCorrelationMatrix(
		portfolio.NewSyntheticHistoryProvider(time.Now().UnixNano()))
	pf := portfolio.NewManager(initialEquity, client, correlations, appLog)

	metrics := monitoring.NewPrometheusSink()
	health := monitoring.NewHealthChecker()
	notifier := buildNotifier(cfg, appLog)

	breakers := safety.NewCircuitBreakerRegistry()
	riskMgr := risk.NewManager(cfg.Risk, pf, breakers, metrics, appLog)
	riskMgr.SetHealth(health)
	if !cfg.DryRun {
		riskMgr.SetEquitySource(client, "USDT")
	}

	feed := exchange.NewPollingFeed(client, cfg.Monitoring.PricePollInterval, appLog)
	eng := engine.New(client, feed, riskMgr, pf, notifier, metrics, health, appLog)
	eng.SetDryRun(cfg.DryRun)

	store := reconciliation.NewStore(cfg.Reconciliation.ReportFile, cfg.Reconciliation.HistoryDays, appLog)
	job := reconciliation.NewJob(
		engine.NewOrderSource(eng, client),
		store,
		notifier,
		metrics,
		appLog,
		reconciliation.Thresholds{
			MismatchPercentage: cfg.Reconciliation.MismatchPercentageThreshold,
			MissingOrders:      cfg.Reconciliation.MissingOrdersThreshold,
			ExtraOrders:        cfg.Reconciliation.ExtraOrdersThreshold,
		},
		cfg.Reconciliation.Interval,
	)
	job.SetHealth(health)
	scheduler := reconciliation.NewScheduler(job, cfg.Reconciliation.Interval, cfg.Reconciliation.TimeOfDay, appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		if !cfg.DryRun {
			log.Fatalf("Failed to start trading engine: %v", err)
		}
		// dry-run can operate without exchange connectivity
		appLog.Warning("Exchange unreachable, continuing in dry-run mode: %v", err)
		riskMgr.StartMonitoring(ctx)
	}

	go runScheduler(ctx, cancel, scheduler, notifier, appLog)

	metricsSrv := serveHTTP(cfg.Monitoring.PrometheusPort, metricsMux(), appLog)
	healthSrv := serveHTTP(cfg.Monitoring.HealthPort, healthMux(health, job, riskMgr, pf), appLog)

	printStartupInfo(cfg, client.GetName(), initialEquity)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Println("\n🛑 Shutdown signal received...")
	case <-ctx.Done():
		fmt.Println("\n🛑 Fatal error, shutting down...")
	}

	cancel()
	eng.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	_ = healthSrv.Shutdown(shutdownCtx)

	fmt.Println("✅ Daemon stopped successfully")
}

// runScheduler drives the reconciliation schedule. A fatal return means
// repeated consecutive failures and takes the whole process down.
func runScheduler(ctx context.Context, cancel context.CancelFunc, scheduler *reconciliation.Scheduler, notifier notifications.Notifier, appLog *logger.Logger) {
	if err := scheduler.Run(ctx); err != nil {
		appLog.LogError("reconciliation scheduler", err)
		if notifier != nil {
			_ = notifier.SendAlert("Reconciliation Scheduler Stopped",
				fmt.Sprintf("Scheduler exited: %v", err),
				notifications.LevelCritical, nil)
		}
		cancel()
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	return mux
}

func healthMux(health *monitoring.HealthChecker, job *reconciliation.Job, riskMgr *risk.Manager, pf *portfolio.Manager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.HandleFunc("/reconciliation", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(job.Status())
	})
	mux.HandleFunc("/risk", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(riskMgr.GetRiskReport())
	})
	mux.HandleFunc("/size", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol query parameter is required", http.StatusBadRequest)
			return
		}

		params := risk.DefaultSizingParams()
		if v := r.URL.Query().Get("risk_pct"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				params.RiskPercentage = f
			}
		}
		if v := r.URL.Query().Get("stop_loss_pct"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				params.StopLossPct = f
			}
		}

		size := riskMgr.CalculatePositionSize(symbol, pf.AccountEquity(), params)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"symbol": symbol,
			"size":   size.String(),
		})
	})
	return mux
}

func serveHTTP(port int, mux *http.ServeMux, appLog *logger.Logger) *http.Server {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Error("HTTP server on %s failed: %v", srv.Addr, err)
		}
	}()
	return srv
}

// buildNotifier prefers Telegram when configured, otherwise alerts go to
// the log file
func buildNotifier(cfg *config.Config, appLog *logger.Logger) notifications.Notifier {
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		return notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken, cfg.Notifications.TelegramChatID)
	}
	return notifications.NewLogNotifier(appLog)
}

// loadEnvFile loads environment variables from a file
func loadEnvFile(envFile string) error {
	if _, err := os.Stat(envFile); err == nil {
		return godotenv.Load(envFile)
	}
	return fmt.Errorf("env file %s not found", envFile)
}

// validateCredentials ensures exchange API credentials are present unless
// running in dry-run mode
func validateCredentials(cfg *config.Config) error {
	if cfg.DryRun {
		return nil
	}
	if cfg.Exchange.APIKey == "" {
		return fmt.Errorf("EXCHANGE_API_KEY is required (set in environment or .env)")
	}
	if cfg.Exchange.APISecret == "" {
		return fmt.Errorf("EXCHANGE_API_SECRET is required (set in environment or .env)")
	}
	return nil
}

func printStartupInfo(cfg *config.Config, exchangeName string, equity decimal.Decimal) {
	mode := "LIVE"
	if cfg.DryRun {
		mode = "DRY RUN"
	}
	environment := "mainnet"
	if cfg.Exchange.Demo {
		environment = "demo"
	} else if cfg.Exchange.Testnet {
		environment = "testnet"
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("RISK DAEMON")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🏪 Exchange", exchangeName},
		{"🔧 Environment", environment},
		{"🎛️ Mode", mode},
		{"💰 Initial Equity", "$" + equity.StringFixed(2)},
	})

	t.AppendSeparator()

	t.AppendRows([]table.Row{
		{"📏 Max Order Size", "$" + cfg.Risk.MaxOrderSize.StringFixed(2)},
		{"📊 Max Leverage", fmt.Sprintf("%.1fx", cfg.Risk.MaxLeverage)},
		{"📉 Daily Drawdown Limit", fmt.Sprintf("%.1f%%", cfg.Risk.MaxDailyDrawdown*100)},
		{"📉 Weekly Drawdown Limit", fmt.Sprintf("%.1f%%", cfg.Risk.MaxWeeklyDrawdown*100)},
		{"🔁 Reconciliation", fmt.Sprintf("%s at %s", cfg.Reconciliation.Interval, cfg.Reconciliation.TimeOfDay)},
		{"📡 Metrics Port", fmt.Sprintf("%d", cfg.Monitoring.PrometheusPort)},
		{"🩺 Health Port", fmt.Sprintf("%d", cfg.Monitoring.HealthPort)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 24, WidthMax: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 24, WidthMax: 35, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

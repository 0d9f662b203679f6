package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantrail/riskcore/internal/config"
	"github.com/quantrail/riskcore/internal/reconciliation"
	"github.com/quantrail/riskcore/internal/risk"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "report":
		runReport(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: riskctl <command> [flags]

Commands:
  report    Fetch and render the live risk report from a running daemon
  export    Export reconciliation history to an Excel workbook`)
}

// runReport fetches the risk report from the daemon's health endpoint and
// renders it as a terminal table
func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	addr := fs.String("addr", "", "Daemon health address (default: localhost with HEALTH_PORT)")
	asJSON := fs.Bool("json", false, "Print raw JSON instead of a table")
	_ = fs.Parse(args)

	target := *addr
	if target == "" {
		_ = godotenv.Load()
		cfg := config.Load()
		target = fmt.Sprintf("http://localhost:%d", cfg.Monitoring.HealthPort)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(target + "/risk")
	if err != nil {
		fatal("Failed to reach daemon: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fatal("Daemon returned %s", resp.Status)
	}

	var report risk.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		fatal("Failed to decode risk report: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
		return
	}

	report.Render(os.Stdout)
}

// runExport writes the stored reconciliation history to an xlsx workbook
func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	output := fs.String("o", "reconciliation_history.xlsx", "Output xlsx path")
	source := fs.String("source", "", "Reconciliation report file (default: RECONCILIATION_REPORT_FILE)")
	_ = fs.Parse(args)

	_ = godotenv.Load()
	cfg := config.Load()

	path := *source
	if path == "" {
		path = cfg.Reconciliation.ReportFile
	}

	store := reconciliation.NewStore(path, cfg.Reconciliation.HistoryDays, nil)
	if err := store.ExportHistoryXLSX(*output); err != nil {
		fatal("Export failed: %v", err)
	}

	fmt.Printf("📊 Exported reconciliation history to %s\n", *output)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/keepmind9/guildbot/internal/core"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	statusAddr   string
	statusConfig string
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of a running guildbot",
	Long:  "Query the admin server of a running guildbot for connection, handler and scheduler status",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := statusAddr
		if addr == "" {
			addr = core.DefaultAdminAddr
			if path := resolveConfigPath(statusConfig); path != "" {
				if cfg, err := core.LoadConfig(path); err == nil {
					addr = cfg.AdminServer.Addr
				}
			}
		}

		body, err := fetchStatus(&http.Client{Timeout: 5 * time.Second}, addr)
		if err != nil {
			return err
		}
		if statusJSON {
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		}
		renderStatus(cmd.OutOrStdout(), gjson.Parse(body), time.Now())
		return nil
	},
}

// fetchStatus returns the raw /status document.
func fetchStatus(client *http.Client, addr string) (string, error) {
	url := addr
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	resp, err := client.Get(strings.TrimSuffix(url, "/") + "/status")
	if err != nil {
		return "", fmt.Errorf("admin server at %s is not reachable (is admin_server.enabled set?): %w", addr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("admin server returned %s", resp.Status)
	}
	if !gjson.Valid(string(data)) {
		return "", fmt.Errorf("admin server returned invalid JSON")
	}
	return string(data), nil
}

func renderStatus(w io.Writer, s gjson.Result, now time.Time) {
	fmt.Fprintln(w, "guildbot status:")
	fmt.Fprintf(w, "  - Platform:   %s (%s)\n", s.Get("platform").String(), s.Get("connection").String())
	if started, err := time.Parse(time.RFC3339, s.Get("started_at").String()); err == nil {
		fmt.Fprintf(w, "  - Started:    %s\n", humanize.RelTime(started, now, "ago", "from now"))
	}
	fmt.Fprintf(w, "  - Latency:    %dms\n", s.Get("latency_ms").Int())
	fmt.Fprintf(w, "  - Handlers:   %d (generation %d)\n", s.Get("handlers").Int(), s.Get("generation").Uint())

	modules := make([]string, 0)
	for _, m := range s.Get("modules").Array() {
		modules = append(modules, m.String())
	}
	fmt.Fprintf(w, "  - Modules:    %s\n", strings.Join(modules, ", "))
	fmt.Fprintf(w, "  - Events:     %s processed, %d queued\n", humanize.Comma(s.Get("events_processed").Int()), s.Get("events_queued").Int())
	fmt.Fprintf(w, "  - Tasks:      %d waiting\n", s.Get("tasks_waiting").Int())
	fmt.Fprintf(w, "  - Rate limit: %s buckets\n", humanize.Comma(s.Get("rate_limit_buckets").Int()))

	scheduler := "stopped"
	if s.Get("scheduler_running").Bool() {
		scheduler = "running"
	}
	fmt.Fprintf(w, "  - Scheduler:  %s, %d ticks skipped\n", scheduler, s.Get("scheduler_skipped").Int())
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "Admin server address (default from config)")
	statusCmd.Flags().StringVarP(&statusConfig, "config", "c", "", "Configuration file path")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output raw JSON")
}

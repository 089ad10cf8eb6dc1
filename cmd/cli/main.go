package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	noAutoStart bool
	jsonOutput  bool
	rootCmd     = &cobra.Command{
		Use:   "contentsync",
		Short: "contentsync CLI - downloadable content updater",
		Long:  `A command-line interface for checking, downloading and installing content packages.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Print raw JSON responses")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	serverLauncher.baseURL = serverURL
	if err := serverLauncher.ensure(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// call performs a request against the server and decodes the JSON body into
// out. Non-2xx responses terminate the command.
func call(method, path string, out interface{}) {
	ensureServer()

	req, err := http.NewRequest(method, serverURL+path, nil)
	if err != nil {
		fail(err)
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			fail(fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode))
		}
		fail(fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	if jsonOutput {
		var pretty interface{}
		if json.Unmarshal(body, &pretty) == nil {
			data, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(data))
		} else {
			fmt.Println(string(body))
		}
		os.Exit(0)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			fail(fmt.Errorf("unexpected response: %w", err))
		}
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

type statusView struct {
	State           string   `json:"state"`
	SessionID       string   `json:"session_id"`
	Busy            bool     `json:"busy"`
	CachePurged     bool     `json:"cache_purged"`
	PendingPackages []string `json:"pending_packages"`
	PendingRemovals []string `json:"pending_removals"`
	BytesToDownload uint64   `json:"bytes_to_download"`
	BytesDownloaded uint64   `json:"bytes_downloaded"`
	LastError       string   `json:"last_error"`
}

func printStatus(s statusView) {
	fmt.Printf("  State:    %s\n", s.State)
	if s.SessionID != "" {
		fmt.Printf("  Session:  %s\n", s.SessionID)
	}
	fmt.Printf("  Busy:     %v\n", s.Busy)
	if s.CachePurged {
		fmt.Printf("  Cache:    purged, content must be downloaded before use\n")
	}
	if len(s.PendingPackages) > 0 {
		fmt.Printf("  Fetch:    %v (%d bytes)\n", s.PendingPackages, s.BytesToDownload)
	}
	if len(s.PendingRemovals) > 0 {
		fmt.Printf("  Remove:   %v\n", s.PendingRemovals)
	}
	if s.BytesToDownload > 0 {
		fmt.Printf("  Progress: %d/%d bytes\n", s.BytesDownloaded, s.BytesToDownload)
	}
	if s.LastError != "" {
		fmt.Printf("  Error:    %s\n", s.LastError)
	}
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the server for content updates",
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Result          string     `json:"result"`
			UpdateAvailable bool       `json:"update_available"`
			Blocking        bool       `json:"blocking"`
			Status          statusView `json:"status"`
		}
		call(http.MethodPost, "/api/v1/content/check", &resp)

		fmt.Printf("Check result: %s\n", resp.Result)
		if resp.Blocking {
			fmt.Println("No usable content is installed.")
		}
		printStatus(resp.Status)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the packages found by the last check",
	Run: func(cmd *cobra.Command, args []string) {
		wait, _ := cmd.Flags().GetBool("wait")
		if !wait {
			call(http.MethodPost, "/api/v1/content/download", nil)
			fmt.Println("Download started. Use 'contentsync status' to follow progress.")
			return
		}

		var resp struct {
			Result string     `json:"result"`
			Status statusView `json:"status"`
		}
		call(http.MethodPost, "/api/v1/content/download?wait=true", &resp)
		fmt.Printf("Download result: %s\n", resp.Result)
		printStatus(resp.Status)
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install downloaded packages",
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Result string     `json:"result"`
			Status statusView `json:"status"`
		}
		call(http.MethodPost, "/api/v1/content/install", &resp)
		fmt.Printf("Install result: %s\n", resp.Result)
		printStatus(resp.Status)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check, download and install in one step",
	Run: func(cmd *cobra.Command, args []string) {
		noInstall, _ := cmd.Flags().GetBool("no-install")
		path := "/api/v1/content/update"
		if noInstall {
			path += "?install=false"
		}

		var resp struct {
			Report struct {
				SessionID string `json:"session_id"`
				Check     string `json:"check"`
				Download  string `json:"download"`
				Install   string `json:"install"`
			} `json:"report"`
			Status statusView `json:"status"`
		}
		call(http.MethodPost, path, &resp)

		fmt.Printf("Session %s\n", resp.Report.SessionID)
		fmt.Printf("  Check:    %s\n", resp.Report.Check)
		if resp.Report.Download != "" {
			fmt.Printf("  Download: %s\n", resp.Report.Download)
		}
		if resp.Report.Install != "" {
			fmt.Printf("  Install:  %s\n", resp.Report.Install)
		}
		if resp.Status.LastError != "" {
			fmt.Printf("  Error:    %s\n", resp.Status.LastError)
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the update engine status",
	Run: func(cmd *cobra.Command, args []string) {
		var resp struct {
			Status   statusView `json:"status"`
			Progress float64    `json:"progress"`
		}
		call(http.MethodGet, "/api/v1/content/status", &resp)
		fmt.Println("Content Status:")
		printStatus(resp.Status)
	},
}

type sessionView struct {
	ID              string `json:"id"`
	State           string `json:"state"`
	CheckResult     string `json:"check_result"`
	DownloadResult  string `json:"download_result"`
	InstallResult   string `json:"install_result"`
	PackagesToFetch int    `json:"packages_to_fetch"`
	BytesToDownload uint64 `json:"bytes_to_download"`
	ErrorMessage    string `json:"error_message"`
	CreatedAt       string `json:"created_at"`
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent update sessions",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		var resp struct {
			Sessions []sessionView `json:"sessions"`
			Stats    struct {
				Total      int64 `json:"total"`
				Installed  int64 `json:"installed"`
				NoUpdate   int64 `json:"no_update"`
				Available  int64 `json:"available"`
				Downloaded int64 `json:"downloaded"`
			} `json:"stats"`
		}
		call(http.MethodGet, "/api/v1/content/sessions?limit="+strconv.Itoa(limit), &resp)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATE\tCHECK\tPACKAGES\tBYTES\tCREATED")
		for _, s := range resp.Sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				truncate(s.ID, 8),
				s.State,
				s.CheckResult,
				s.PackagesToFetch,
				s.BytesToDownload,
				s.CreatedAt)
		}
		w.Flush()
		fmt.Printf("\n%d sessions, %d installed, %d without update, %d not downloaded, %d not installed\n",
			resp.Stats.Total, resp.Stats.Installed, resp.Stats.NoUpdate, resp.Stats.Available, resp.Stats.Downloaded)
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session [id]",
	Short: "Show update session details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var s sessionView
		call(http.MethodGet, "/api/v1/content/sessions/"+url.PathEscape(args[0]), &s)

		fmt.Printf("Session Details:\n")
		fmt.Printf("  ID:       %s\n", s.ID)
		fmt.Printf("  State:    %s\n", s.State)
		fmt.Printf("  Check:    %s\n", s.CheckResult)
		fmt.Printf("  Download: %s\n", s.DownloadResult)
		fmt.Printf("  Install:  %s\n", s.InstallResult)
		fmt.Printf("  Created:  %s\n", s.CreatedAt)
		if s.ErrorMessage != "" {
			fmt.Printf("  Error:    %s\n", s.ErrorMessage)
		}
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "View session or error logs",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		category := "session"
		if len(args) == 1 {
			category = args[0]
		}

		query := url.Values{}
		if v, _ := cmd.Flags().GetString("session"); v != "" {
			query.Set("session_id", v)
		}
		if v, _ := cmd.Flags().GetString("grep"); v != "" {
			query.Set("q", v)
		}
		if v, _ := cmd.Flags().GetString("date"); v != "" {
			query.Set("date", v)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query.Set("limit", strconv.Itoa(limit))

		var resp struct {
			Entries []struct {
				Timestamp string                 `json:"timestamp"`
				Level     string                 `json:"level"`
				Message   string                 `json:"message"`
				Fields    map[string]interface{} `json:"fields"`
			} `json:"entries"`
		}
		call(http.MethodGet, "/api/v1/logs/"+url.PathEscape(category)+"?"+query.Encode(), &resp)

		for _, e := range resp.Entries {
			fmt.Printf("%s %-5s %s", e.Timestamp, e.Level, e.Message)
			if id, ok := e.Fields["session_id"]; ok {
				fmt.Printf(" session=%v", id)
			}
			fmt.Println()
		}
	},
}

func init() {
	downloadCmd.Flags().BoolP("wait", "w", false, "Wait for the download to finish")
	updateCmd.Flags().Bool("no-install", false, "Stop after downloading")
	sessionsCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	logsCmd.Flags().StringP("session", "s", "", "Only entries for this session id")
	logsCmd.Flags().StringP("grep", "g", "", "Only entries whose message contains this text")
	logsCmd.Flags().StringP("date", "d", "", "Log date (YYYY-MM-DD), default today")
	logsCmd.Flags().IntP("limit", "n", 100, "Number of entries to show")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

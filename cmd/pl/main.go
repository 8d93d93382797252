package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitline/internal/archive"
	"permitline/internal/config"
	"permitline/internal/portal"
	"permitline/internal/server"
	"permitline/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Permitline CLI",
	Long: `Permitline tracks planning applications through their statutory lifecycle.
Core concepts:
- Application: one planning submission with its reference, address, and type code.
- Milestones: the procedural skeleton (validation, consultation, decision) scheduled
  from the submission date and the jurisdiction's statutory period.
- Status updates: authority-reported states; side effects stamp dates and complete
  the matching milestone, and every change raises a status-change alert.
- Timeline: derived progress with a predicted decision date and a confidence score.
- Alerts: deadline, action-required, and status-change notifications; 'pl scan'
  sweeps for approaching or passed decision targets.
- Archive: a .permitline SQLite database holding snapshots plus an event journal
  ('pl log tail' shows the diary).`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PERMITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("user-id", "local-user", "user identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("user-id", rootCmd.PersistentFlags().Lookup("user-id"))
}

func registerCommands() {
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func appCmd() *cobra.Command {
	app := &cobra.Command{
		Use:   "app",
		Short: "Manage applications",
		Long:  "Applications are tracked planning submissions. Create one with its reference and type code; statuses flow leniently (draft, submitted, validated, consultation, assessment, committee, decision, approved, refused, withdrawn, appeal).",
	}
	app.AddCommand(appCreateCmd())
	app.AddCommand(appGetCmd())
	app.AddCommand(appListCmd())
	app.AddCommand(appStatusCmd())
	app.AddCommand(appDocumentCmd())
	app.AddCommand(appCommCmd())
	app.AddCommand(appResolveCmd())
	app.AddCommand(appTimelineCmd())
	return app
}

func appCreateCmd() *cobra.Command {
	var opts tracker.CreateOptions
	var submitted string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a submitted application",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.UserID = viper.GetString("user-id")
			if submitted != "" {
				t, err := parseDate(submitted)
				if err != nil {
					return err
				}
				opts.SubmittedAt = t
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.Create(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Reference, "reference", "", "planning reference")
	cmd.Flags().StringVar(&opts.Address, "address", "", "site address")
	cmd.Flags().StringVar(&opts.Postcode, "postcode", "", "site postcode")
	cmd.Flags().StringVar(&opts.Description, "description", "", "proposal description")
	cmd.Flags().StringVar(&opts.TypeCode, "type", "householder", "application type code")
	cmd.Flags().StringVar(&opts.Borough, "borough", "", "borough")
	cmd.Flags().StringVar(&opts.Ward, "ward", "", "ward")
	cmd.Flags().StringVar(&submitted, "submitted", "", "submission date (RFC3339 or YYYY-MM-DD, defaults to now)")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

func appGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.Get(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func appListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's applications, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("user-id")
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				apps, err := tr.UserApplications(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(apps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Reference", "Type", "Status", "Target decision"})
				for _, a := range apps {
					tw.AppendRow(table.Row{a.ID, a.Reference, a.TypeCode, a.Status, a.TargetDecisionAt.Format("2006-01-02")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to --user-id)")
	return cmd
}

func appStatusCmd() *cobra.Command {
	var status, notes string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Apply an authority status update",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.UpdateStatus(ctx, id, status, notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&notes, "notes", "", "authority notes")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func appDocumentCmd() *cobra.Command {
	var name, category string
	cmd := &cobra.Command{
		Use:   "document <id>",
		Short: "Record a submitted document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.AddDocument(ctx, id, name, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "document name")
	cmd.Flags().StringVar(&category, "category", "", "document category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func appCommCmd() *cobra.Command {
	var opts tracker.CommunicationOptions
	var deadline string
	cmd := &cobra.Command{
		Use:   "comm <id>",
		Short: "Log a communication with the authority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if deadline != "" {
				t, err := parseDate(deadline)
				if err != nil {
					return err
				}
				opts.ActionDeadline = &t
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.LogCommunication(ctx, id, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Direction, "direction", "in", "direction (in or out)")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "summary")
	cmd.Flags().BoolVar(&opts.ActionRequired, "action-required", false, "response needed")
	cmd.Flags().StringVar(&deadline, "action-deadline", "", "response deadline (RFC3339 or YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("summary")
	return cmd
}

func appResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id> <communication-id>",
		Short: "Mark an action-required communication as dealt with",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.ResolveCommunication(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func appTimelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show derived progress and decision prediction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				tl, err := tr.Timeline(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tl)
				}
				fmt.Printf("Application: %s (%s)\n", tl.ApplicationID, tl.Status)
				fmt.Printf("Progress: %d%% (%d of %d days, %d remaining)\n",
					tl.PercentComplete, tl.ElapsedDays, tl.TotalDays, tl.RemainingDays)
				track := "on track"
				if !tl.OnTrack {
					track = "running late"
				}
				fmt.Printf("Predicted decision: %s (%s, confidence %d%%)\n",
					tl.PredictedDecision.Format("2006-01-02"), track, tl.Confidence)
				fmt.Println("Stages:")
				for _, st := range tl.Stages {
					fmt.Printf("  %-12s %s\n", st.Name, st.Status)
				}
				return nil
			})
		},
	}
	return cmd
}

func alertCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "alert",
		Short: "Manage alerts",
		Long:  "Alerts flag decision deadlines, pending action-required communications, and status changes. Unread alerts block repeat deadline alerts of the same type; reading one re-arms the scan.",
	}
	a.AddCommand(alertListCmd())
	a.AddCommand(alertReadCmd())
	return a
}

func alertListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <application-id>",
		Short: "List unread alerts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				alerts, err := tr.PendingAlerts(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(alerts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Priority", "Message"})
				for _, al := range alerts {
					tw.AppendRow(table.Row{al.ID, al.Type, al.Priority, al.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func alertReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <application-id> <alert-id>",
		Short: "Mark an alert read",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.MarkAlertRead(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(app)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's portfolio statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				userID = viper.GetString("user-id")
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				stats, err := tr.UserStats(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				fmt.Printf("User: %s\n", stats.UserID)
				fmt.Printf("Applications: %d\n", stats.Total)
				for status, n := range stats.ByStatus {
					if n > 0 {
						fmt.Printf("  %s: %d\n", status, n)
					}
				}
				fmt.Printf("Average decision days: %.1f\n", stats.AverageDecisionDays)
				fmt.Printf("Approval rate: %d%%\n", stats.ApprovalRate)
				fmt.Printf("Pending actions: %d\n", stats.PendingActions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to --user-id)")
	return cmd
}

func scanCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for approaching or passed decision deadlines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				alerts, err := tr.CheckDeadlines(ctx)
				if err != nil {
					return err
				}
				if !dryRun {
					if err := tr.RecordAlerts(ctx, alerts); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(alerts)
				}
				if len(alerts) == 0 {
					fmt.Println("no alerts raised")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Application", "Type", "Priority", "Message"})
				for _, al := range alerts {
					tw.AppendRow(table.Row{al.ApplicationID, al.Type, al.Priority, al.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without recording alerts")
	return cmd
}

func importCmd() *cobra.Command {
	var portalURL, apiKey string
	cmd := &cobra.Command{
		Use:   "import <reference>",
		Short: "Import an application from a public planning portal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference := args[0]
			if portalURL == "" {
				return fmt.Errorf("--portal-url required")
			}
			pc := portal.New(portalURL)
			pc.APIKey = apiKey
			rec, err := pc.Fetch(cmd.Context(), reference)
			if err != nil {
				return err
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr *tracker.Tracker) error {
				app, err := tr.Create(ctx, tracker.CreateOptions{
					Reference:   rec.Reference,
					Address:     rec.Address,
					Postcode:    rec.Postcode,
					Description: rec.Description,
					TypeCode:    rec.TypeCode,
					Borough:     rec.Borough,
					Ward:        rec.Ward,
					UserID:      viper.GetString("user-id"),
					SubmittedAt: rec.SubmittedAt(),
				})
				if err != nil {
					return err
				}
				if rec.Status != "" && rec.Status != app.Status {
					app, err = tr.UpdateStatus(ctx, app.ID, rec.Status, "imported from portal")
					if err != nil {
						return err
					}
				}
				return printJSONOrTable(app)
			})
		},
	}
	cmd.Flags().StringVar(&portalURL, "portal-url", "", "portal base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "portal API key")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect jurisdiction config",
		Long:  "Config is the rulebook (permitline.yml in the workspace): statutory determination periods by type code, alert thresholds, and webhook targets for serve mode.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event journal",
		Long:  "The diary of everything that happened: creations, status changes, documents, communications, and raised alerts.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := archive.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			j := archive.Journal{DB: conn}
			entries, err := j.Tail(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSONOrTable(entries)
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			conn, err := archive.Open(workspace)
			if err != nil {
				return err
			}
			defer conn.Close()
			tr := tracker.New(cfg)
			tr.Snapshots = &archive.Snapshots{DB: conn}
			tr.Journal = &archive.Journal{DB: conn}
			if err := tr.Reload(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Archive %s: %d applications loaded\n", archive.Path(workspace), tr.Store.Len())
			authCfg := server.AuthConfig{
				JWTSecret:             os.Getenv("PERMITLINE_JWT_SECRET"),
				AllowLegacyUserHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PERMITLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Tracker: tr, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			stopSweeper := server.StartSweeper(tr, cfg)
			defer stopSweeper()
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Permitline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-user-header", false, "accept X-User-Id without a token")
	return cmd
}

// --- helpers ---

func withTracker(ctx context.Context, fn func(context.Context, *tracker.Tracker) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	conn, err := archive.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	tr := tracker.New(cfg)
	tr.Snapshots = &archive.Snapshots{DB: conn}
	tr.Journal = &archive.Journal{DB: conn}
	if err := tr.Reload(ctx); err != nil {
		return err
	}
	return fn(ctx, tr)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want RFC3339 or YYYY-MM-DD)", s)
}

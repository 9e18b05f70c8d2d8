package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryanhung919/x-men-sub002/internal/config"
	"github.com/ryanhung919/x-men-sub002/internal/db"
	"github.com/ryanhung919/x-men-sub002/internal/engine"
	"github.com/ryanhung919/x-men-sub002/internal/mailer"
	"github.com/ryanhung919/x-men-sub002/internal/migrate"
	"github.com/ryanhung919/x-men-sub002/internal/reminder"
	"github.com/ryanhung919/x-men-sub002/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "notifyd",
	Short: "Task notification and reminder service",
	Long: `notifyd is the notification core of the department task tracker.
It reacts to task assignments, comments, and updates by fanning out
in-app notifications, and periodically emails deadline reminders for
tasks that are overdue, due today, or due tomorrow.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("NOTIFYD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(notificationsCmd())
}

// loadConfig falls back to defaults when notifyd.yml is absent.
func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := loadConfig(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func smtpMailer(cfg *config.Config) mailer.SMTP {
	return mailer.SMTP{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the periodic reminder sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cfg := e.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				authCfg := server.AuthConfig{JWTSecret: cfg.Server.JWTSecret}
				if authCfg.JWTSecret == "" {
					authCfg.JWTSecret = os.Getenv("NOTIFYD_JWT_SECRET")
				}
				if authCfg.JWTSecret == "" {
					return fmt.Errorf("jwt secret is required (config server.jwt_secret or NOTIFYD_JWT_SECRET)")
				}
				sweeper := e.Sweeper(smtpMailer(cfg))
				handler, err := server.New(server.Config{Engine: e, Sweeper: sweeper, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}

				go runSweepLoop(ctx, sweeper, cfg.SweepInterval())

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving notification API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func runSweepLoop(ctx context.Context, sweeper reminder.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			result, err := sweeper.Run(ctx, now)
			if err != nil {
				log.Printf("reminder sweep failed: %v", err)
				continue
			}
			log.Printf("reminder sweep: sent=%d failed=%d", result.Sent, len(result.Failed))
		}
	}
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Sweeper(smtpMailer(e.Config)).Run(ctx, time.Now())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(result)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Task", "Assignee", "Email", "Bucket"})
				for _, s := range result.EmailsSent {
					tw.AppendRow(table.Row{s.TaskID, s.AssigneeID, s.Email, string(s.Bucket)})
				}
				tw.Render()
				fmt.Printf("sent=%d failed=%d success=%v\n", result.Sent, len(result.Failed), result.Success)
				for _, f := range result.Failed {
					fmt.Printf("failed: task=%s assignee=%s: %s\n", f.TaskID, f.AssigneeID, f.Error)
				}
				return nil
			})
		},
	}
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Println("migrations applied:", db.Path(workspace))
			return nil
		},
	}
}

func notificationsCmd() *cobra.Command {
	root := &cobra.Command{Use: "notifications", Short: "Inspect notifications"}
	var userID string
	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListNotifications(ctx, userID, unread)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Message", "Read", "Created"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.ID, n.Type, n.Message, n.Read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&userID, "user", "", "user id")
	list.Flags().BoolVar(&unread, "unread", false, "only unread")
	root.AddCommand(list)
	return root
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

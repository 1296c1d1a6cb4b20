package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitepulse/internal/app"
	"sitepulse/internal/config"
	"sitepulse/internal/db"
	"sitepulse/internal/engine"
	"sitepulse/internal/migrate"
	"sitepulse/internal/progress"
	"sitepulse/internal/repo"
	"sitepulse/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "SitePulse CLI",
	Long: `SitePulse tracks construction projects through design, bidding, contract and construction.
- Design progress is the weighted sum of completed design steps.
- Bidding and contract progress is the current step over the pipeline length.
- Construction progress is the percent reported from site.
Every record is compared with the share of its planned window that has elapsed and
classified as OnPlan, Delay, Completed, Hold or Cancelled. Nothing derived is stored.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITEPULSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log data-quality warnings of every computed record")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(packageCmd())
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(rollupCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(kanbanCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config holds the design step template and weights, bidding and contract pipelines, variance slack and revenue factors. It is stored in the workspace database; import a sitepulse.yml to change it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Config)
				}
				b, err := e.Config.YAML()
				if err != nil {
					return err
				}
				fmt.Print(string(b))
				return nil
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, file, r)
				if err != nil {
					return err
				}
				fmt.Printf("imported config for workspace %s\n", cfg.Workspace.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "sitepulse.yml", "config file path")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := openWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			cfg, err := app.ResolveConfig(cmd.Context(), viper.GetString("workspace"), repo.Repo{DB: conn})
			if err != nil {
				return err
			}
			e := newEngine(conn, cfg)
			e.Logger = log.New(os.Stderr, "sp: ", log.LstdFlags)
			authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret"), Logger: e.Logger}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Context: cmd.Context()})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			if authCfg.JWTSecret == "" {
				e.Logger.Printf("SITEPULSE_JWT_SECRET not set; API is unauthenticated")
			}
			fmt.Printf("Serving SitePulse API on http://%s%s (OpenAPI at %s/openapi.json, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret enabling bearer auth")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

// --- helpers ---

func openWorkspace(ctx context.Context) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// newEngine logs to stderr only with --verbose; commands print the warnings
// of the records they show.
func newEngine(conn *sql.DB, cfg *config.Config) engine.Engine {
	e := engine.New(conn, cfg)
	e.Logger = log.New(io.Discard, "", 0)
	if viper.GetBool("verbose") {
		e.Logger = log.New(os.Stderr, "sp: ", 0)
	}
	return e
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	conn, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), repo.Repo{DB: conn})
	if err != nil {
		return err
	}
	return fn(ctx, newEngine(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	conn, err := openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printWarnings(warns []progress.Warning) {
	for _, w := range warns {
		fmt.Printf("warning: %s: %s\n", w.Code, w.Message)
	}
}

// changedString returns the flag value only when it was set on the command line.
func changedString(cmd *cobra.Command, name, v string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func changedFloat(cmd *cobra.Command, name string, v float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

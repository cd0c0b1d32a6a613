package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ariefcatur/go-premium-store/internal/app"
	"github.com/ariefcatur/go-premium-store/internal/config"
	"github.com/ariefcatur/go-premium-store/internal/logger"
	"github.com/ariefcatur/go-premium-store/internal/postgres"
	"github.com/ariefcatur/go-premium-store/internal/shop"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg     config.Config
	lg      *zap.Logger
	adminID string
)

var rootCmd = &cobra.Command{
	Use:          "storectl",
	Short:        "Premium store admin CLI",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		lg = logger.New(cfg.ServiceName+"-ctl", cfg.LogLevel, cfg.LogFile)
		if adminID == "" && len(cfg.AdminIDs) > 0 {
			adminID = cfg.AdminIDs[0]
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if lg != nil {
			_ = lg.Sync()
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the Postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}
		ctx := cmd.Context()
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		lg.Info("migrated")
		return nil
	},
}

// withApp runs fn against the configured stores.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	if cfg.PostgresDSN == "" {
		lg.Warn("POSTGRES_DSN empty, working on an in-memory store")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a, err := app.Build(ctx, cfg, lg, nil)
	if err != nil {
		return err
	}
	err = fn(a)
	cancel()
	a.Close()
	return err
}

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products and package availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			ps, err := a.Coord.ListProducts(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PRODUCT\tPACKAGE\tPRICE\tAVAILABLE")
			for _, p := range ps {
				list, err := a.Coord.ListPackages(cmd.Context(), p.ID)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintf(w, "%s\t-\t-\t-\n", p.ID)
				}
				for _, pa := range list {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", p.ID, pa.Package.Key.PackageID, pa.Package.Price, pa.Available)
				}
			}
			return w.Flush()
		})
	},
}

var restockFile string

var restockCmd = &cobra.Command{
	Use:   "restock PRODUCT_ID PACKAGE_ID",
	Short: "Add credentials, one per line, from --file or stdin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if restockFile != "" {
			f, err := os.Open(restockFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		secrets, err := readLines(in)
		if err != nil {
			return err
		}
		key := shop.PackageKey{ProductID: args[0], PackageID: args[1]}
		return withApp(cmd.Context(), func(a *app.App) error {
			n, err := a.Coord.Restock(cmd.Context(), adminID, key, secrets)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d credentials to %s\n", n, key)
			return nil
		})
	},
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

var stockCmd = &cobra.Command{
	Use:   "stock PRODUCT_ID",
	Short: "Print the stock report of a product as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			rep, err := a.Coord.StockReport(cmd.Context(), adminID, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiry and reconciliation pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Coord.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d settled=%d released=%d\n", res.Expired, res.Settled, res.Released)
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminID, "admin", "", "admin id (default: first of ADMIN_IDS)")
	restockCmd.Flags().StringVarP(&restockFile, "file", "f", "", "file with one credential per line")

	rootCmd.AddCommand(migrateCmd, productsCmd, restockCmd, stockCmd, sweepCmd)
}

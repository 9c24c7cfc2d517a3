package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spesen/internal/config"
	applog "spesen/internal/log"
	"spesen/internal/report"
	"spesen/internal/services"
	"spesen/internal/storage"
)

var (
	flagYear  int
	flagFrom  int
	flagTo    int
	flagLimit int
	flagPDF   string
	flagDB    string
)

var rootCmd = &cobra.Command{
	Use:   "spesen-report",
	Short: "Steuerbericht für ein Jahr ausgeben",
	Long:  "Berechnet die absetzbaren Beträge eines Jahres und gibt sie als Text oder PDF aus.",
	RunE:  runReport,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&flagYear, "year", "y", time.Now().Year(), "Berichtsjahr")
	rootCmd.PersistentFlags().StringVarP(&flagDB, "db", "d", "", "Pfad zur SQLite-Datenbank (Standard aus SQLITE_DB_PATH)")
	rootCmd.Flags().IntVar(&flagLimit, "limit", 10, "Anzahl der letzten Einträge (0 = alle)")
	rootCmd.Flags().StringVar(&flagPDF, "pdf", "", "PDF-Zusammenfassung in diese Datei schreiben")

	rootCmd.AddCommand(yearsCmd)
}

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "Jahresvergleich der Kennzahlen",
	RunE:  runYears,
}

func init() {
	yearsCmd.Flags().IntVar(&flagFrom, "from", 0, "Erstes Jahr (Standard: Berichtsjahr - 2)")
	yearsCmd.Flags().IntVar(&flagTo, "to", 0, "Letztes Jahr (Standard: Berichtsjahr)")
}

// openReports wires the storage and report layers the same way the server
// does, minus AMQP and HTTP.
func openReports() (*services.ReportService, func(), error) {
	_ = godotenv.Load()
	applog.SetDefault(applog.New(applog.Config{Component: "spesen-report", Level: slog.LevelWarn}))

	dbPath := flagDB
	if dbPath == "" {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("load configuration: %w", err)
		}
		dbPath = cfg.SQLiteDBPath
	}

	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", dbPath, err)
	}
	return services.NewReportService(repo), func() { repo.Close() }, nil
}

func runReport(_ *cobra.Command, _ []string) error {
	reports, closeRepo, err := openReports()
	if err != nil {
		return err
	}
	defer closeRepo()

	ctx := context.Background()

	kpis, err := reports.Kpis(ctx, flagYear)
	if err != nil {
		return fmt.Errorf("compute kpis: %w", err)
	}
	series, err := reports.Series(ctx, flagYear)
	if err != nil {
		return fmt.Errorf("compute monthly series: %w", err)
	}
	recent, err := reports.Recent(ctx, flagLimit)
	if err != nil {
		return fmt.Errorf("load recent entries: %w", err)
	}

	yr := report.YearReport{Kpis: kpis, Series: series, Recent: recent}
	fmt.Print(report.RenderText(yr))

	if flagPDF != "" {
		data, name, err := report.RenderPDF(yr)
		if err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
		out := flagPDF
		if info, err := os.Stat(out); err == nil && info.IsDir() {
			out = out + string(os.PathSeparator) + name
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write pdf %s: %w", out, err)
		}
		fmt.Fprintf(os.Stderr, "PDF geschrieben: %s\n", out)
	}

	return nil
}

func runYears(_ *cobra.Command, _ []string) error {
	reports, closeRepo, err := openReports()
	if err != nil {
		return err
	}
	defer closeRepo()

	from, to := flagFrom, flagTo
	if to == 0 {
		to = flagYear
	}
	if from == 0 {
		from = to - 2
	}

	results, err := reports.YearRange(context.Background(), from, to)
	if err != nil {
		return fmt.Errorf("compute year range: %w", err)
	}

	fmt.Printf("%-6s %14s %14s %14s %14s\n", "Jahr", "Fahrten", "Arbeitsmittel", "Gesamt", "Netto")
	for _, k := range results {
		fmt.Printf("%-6d %14.2f %14.2f %14.2f %14.2f\n",
			k.Year, k.TotalTrips, k.TotalEquipment, k.GrandTotal, k.NetTotal)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medirec/medirec/internal/config"
	"github.com/medirec/medirec/internal/domain/appointment"
	"github.com/medirec/medirec/internal/domain/audit"
	"github.com/medirec/medirec/internal/domain/billing"
	"github.com/medirec/medirec/internal/domain/clinicaldoc"
	"github.com/medirec/medirec/internal/domain/dedup"
	"github.com/medirec/medirec/internal/domain/insurance"
	"github.com/medirec/medirec/internal/domain/patient"
	"github.com/medirec/medirec/internal/domain/prescription"
	"github.com/medirec/medirec/internal/match"
	"github.com/medirec/medirec/internal/platform/auth"
	"github.com/medirec/medirec/internal/platform/db"
	"github.com/medirec/medirec/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medirec-server",
		Short: "Patient registry with duplicate detection and merge",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scanCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Sweep existing patients through duplicate detection",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinicID, _ := cmd.Flags().GetString("clinic")
			resumeAt, _ := cmd.Flags().GetString("resume-created-at")
			resumeID, _ := cmd.Flags().GetString("resume-id")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if clinicID == "" {
				clinicID = cfg.DefaultClinic
			}

			var cur dedup.Cursor
			if resumeAt != "" {
				cur.CreatedAt, err = time.Parse(time.RFC3339, resumeAt)
				if err != nil {
					return fmt.Errorf("--resume-created-at must be RFC3339: %w", err)
				}
			}
			if resumeID != "" {
				cur.ID, err = uuid.Parse(resumeID)
				if err != nil {
					return fmt.Errorf("--resume-id: %w", err)
				}
			}

			logger := newLogger(cfg)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			app := buildApp(pool, cfg, logger)
			last, stats, err := app.scanner.Run(ctx, clinicID, cur)
			if err != nil {
				logger.Error().Err(err).Msg("scan interrupted")
				fmt.Printf("Resume with: --resume-created-at %s --resume-id %s\n",
					last.CreatedAt.Format(time.RFC3339), last.ID)
				return err
			}

			fmt.Printf("Scan complete: %d patients scanned, %d pairs flagged, %d skipped.\n",
				stats.Scanned, stats.Flagged, stats.Skipped)
			return nil
		},
	}
	cmd.Flags().String("clinic", "", "Clinic to scan (defaults to DEFAULT_CLINIC)")
	cmd.Flags().String("resume-created-at", "", "Cursor: created_at of the last scanned patient (RFC3339)")
	cmd.Flags().String("resume-id", "", "Cursor: id of the last scanned patient")
	return cmd
}

// app bundles the wired services so serve and scan share one construction
// path.
type app struct {
	patients      *patient.Service
	patientRepo   *patient.RepoPG
	dedup         *dedup.Service
	scanner       *dedup.Scanner
	auditSvc      *audit.Service
	appointments  *appointment.Service
	documents     *clinicaldoc.Service
	prescriptions *prescription.Service
	invoices      *billing.Service
	policies      *insurance.Service
}

func buildApp(pool *pgxpool.Pool, cfg *config.Config, logger zerolog.Logger) *app {
	patientRepo := patient.NewRepo(pool)
	auditSvc := audit.NewService(audit.NewRepo(pool), logger)

	appointments := appointment.NewService(appointment.NewRepo(pool))
	documents := clinicaldoc.NewService(clinicaldoc.NewRepo(pool))
	prescriptions := prescription.NewService(prescription.NewRepo(pool))
	invoices := billing.NewService(billing.NewRepo(pool))
	policies := insurance.NewService(insurance.NewRepo(pool))

	candidateRepo := dedup.NewRepo(pool)
	stores := []dedup.DependentStore{appointments, documents, prescriptions, invoices, policies}
	engine := dedup.NewMergeEngine(dedup.NewUnitOfWork(pool), patientRepo, candidateRepo, stores, auditSvc, logger)

	dedupSvc := dedup.NewService(candidateRepo, patientRepo, engine, match.NewScorer(),
		dedup.Thresholds{Low: cfg.DedupLowThreshold, High: cfg.DedupHighThreshold},
		cfg.DedupMaxCandidates, auditSvc, logger)

	return &app{
		patients:      patient.NewService(patientRepo, dedupSvc, logger),
		patientRepo:   patientRepo,
		dedup:         dedupSvc,
		scanner:       dedup.NewScanner(dedupSvc, patientRepo, cfg.DedupScanPageSize, logger),
		auditSvc:      auditSvc,
		appointments:  appointments,
		documents:     documents,
		prescriptions: prescriptions,
		invoices:      invoices,
		policies:      policies,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Clinic-ID"},
	}))

	if cfg.IsDev() && cfg.JWTSecret == "" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.JWTSecret)))
	}
	e.Use(db.ClinicMiddleware(cfg.DefaultClinic))

	app := buildApp(pool, cfg, logger)

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	patient.NewHandler(app.patients).RegisterRoutes(apiV1)
	dedup.NewHandler(app.dedup).RegisterRoutes(apiV1)
	audit.NewHandler(app.auditSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(app.appointments).RegisterRoutes(apiV1)
	clinicaldoc.NewHandler(app.documents).RegisterRoutes(apiV1)
	prescription.NewHandler(app.prescriptions).RegisterRoutes(apiV1)
	billing.NewHandler(app.invoices).RegisterRoutes(apiV1)
	insurance.NewHandler(app.policies).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped cleanly")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/config"
	"github.com/xxxsen/docvault/internal/handler"
	"github.com/xxxsen/docvault/internal/job"
	"github.com/xxxsen/docvault/internal/middleware"
	"github.com/xxxsen/docvault/internal/schedule"
	"github.com/xxxsen/docvault/internal/service"
)

const (
	loginRateWindow = time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docvault",
		Short: "docvault contract document server",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run docvault server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}

	var (
		username string
		password string
		role     string
		maxLevel string
	)
	userCmd := &cobra.Command{Use: "user", Short: "manage users"}
	userCreateCmd := &cobra.Command{
		Use:   "create",
		Short: "create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())
			user, err := a.users.Provision(cmd.Context(), service.CreateUserInput{
				Username: username,
				Password: password,
				Role:     role,
				MaxLevel: maxLevel,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s, %s)\n", user.Username, user.Role, user.MaxLevel)
			return nil
		},
	}
	userCreateCmd.Flags().StringVar(&username, "username", "", "login name")
	userCreateCmd.Flags().StringVar(&password, "password", "", "initial password")
	userCreateCmd.Flags().StringVar(&role, "role", access.RoleUser.String(), "USER, STAFF, ANALYST or ADMIN")
	userCreateCmd.Flags().StringVar(&maxLevel, "max-level", access.LevelPublic.String(), "highest classification the user may read")
	userCmd.AddCommand(userCreateCmd)

	reindexCmd := &cobra.Command{
		Use:   "reindex <doc-id>...",
		Short: "re-chunk and re-embed documents from their stored pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())
			system := access.Subject{UserID: "system", Username: "system", Role: access.RoleAdmin, MaxLevel: access.LevelSecret}
			for _, id := range args {
				n, err := a.ingest.Reindex(cmd.Context(), system, id)
				if err != nil {
					return fmt.Errorf("reindex %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", id, n)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, userCmd, reindexCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	// A missing .env is normal outside development.
	_ = godotenv.Load()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("embed_provider", cfg.AI.EmbedProvider),
	)
	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	created, err := a.auth.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdmin.Username, cfg.BootstrapAdmin.Password)
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logutil.GetLogger(ctx).Info("bootstrap admin created", zap.String("username", cfg.BootstrapAdmin.Username))
	}

	scheduler := schedule.NewCronScheduler(10 * time.Minute)
	retention := time.Duration(cfg.Ingest.JobRetentionHours) * time.Hour
	if err := scheduler.AddJob(job.NewIngestCleanupJob(a.repos.jobs, retention), "17 * * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.repos.embedCache, 30), "40 3 * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)

	deps := handler.RouterDeps{
		Auth:            handler.NewAuthHandler(a.auth),
		Documents:       handler.NewDocumentHandler(a.docs, a.ingest),
		Upload:          handler.NewUploadHandler(a.ingest, int64(cfg.Ingest.MaxUploadMB)<<20, time.Duration(cfg.Ingest.UploadWaitSeconds)*time.Second),
		Ask:             handler.NewAskHandler(a.qa),
		Templates:       handler.NewTemplateHandler(a.template),
		Users:           handler.NewUserHandler(a.users),
		Authenticator:   a.auth,
		LoginRateWindow: loginRateWindow,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/document/[^/]+/(pdf|download)$`})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.Close(shutdownCtx)
	return nil
}

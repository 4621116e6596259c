package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/semillerodigital/classroomplus/internal/classroom"
	"github.com/semillerodigital/classroomplus/internal/dashboard"
	"github.com/semillerodigital/classroomplus/internal/handler"
	appI18n "github.com/semillerodigital/classroomplus/internal/i18n"
	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "load .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "classroomplus",
		Short: "Student, teacher and coordinator dashboards over Google Classroom",
	}

	serve := serveCmd()
	root.AddCommand(serve, sessionCmd(), reportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `classroomplus --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addCommonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "classroomplus.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addClassroomFlags registers the upstream and aggregation settings shared by
// serve and report.
func addClassroomFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("google-client-id", "", "OAuth client ID used to refresh access tokens")
	f.String("google-client-secret", "", "OAuth client secret")
	f.String("token-url", classroom.DefaultTokenURL, "OAuth token endpoint")
	f.String("classroom-url", classroom.DefaultBaseURL, "Classroom API base URL")
	f.String("userinfo-url", classroom.DefaultUserInfoURL, "OAuth userinfo endpoint")
	f.Int("page-size", classroom.DefaultPageSize, "Page size for Classroom list calls")
	f.Bool("follow-pages", false, "Follow nextPageToken instead of reading one page")
	f.Int("max-pages", 0, "Maximum pages per list when following (0 = no limit)")
	f.Int("fan-out", dashboard.DefaultFanOut, "Concurrent Classroom requests per walk")
	f.Duration("upstream-timeout", 30*time.Second, "Timeout per Classroom request (0 disables)")
	f.Int("max-retries", 0, "Retries of 429/5xx Classroom responses (0 disables)")
	f.String("timezone", "", "IANA zone for due dates without a time (default: local)")
	f.StringP("lang", "l", "es", "Default language (en, es)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE:  runServe,
	}
	addCommonFlags(cmd)
	addClassroomFlags(cmd)
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.Duration("cache-ttl", handler.DefaultCacheTTL, "How long student assignments stay cached")
	f.Duration("cache-cooldown", handler.DefaultCacheCooldown, "Minimum time between real fetches of a cached key")
	f.Int("at-risk-limit", handler.DefaultAtRiskLimit, "Students listed by the teacher at-risk view (0 = all)")
	f.Int("recent-limit", handler.DefaultRecentLimit, "Submissions listed by the recent submissions view")
	f.StringSlice("image-allowed-hosts", handler.DefaultImageHosts, "Host suffixes the image proxy may fetch from")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CLASSROOMPLUS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("classroomplus")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/classroomplus")
	v.AddConfigPath("/etc/classroomplus")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

func clientFactory(v *viper.Viper) classroom.Factory {
	return classroom.Factory{
		OAuth: classroom.OAuthConfig{
			ClientID:     v.GetString("google-client-id"),
			ClientSecret: v.GetString("google-client-secret"),
			TokenURL:     v.GetString("token-url"),
		},
		Options: classroom.Options{
			BaseURL:     v.GetString("classroom-url"),
			UserInfoURL: v.GetString("userinfo-url"),
			PageSize:    v.GetInt("page-size"),
			FollowPages: v.GetBool("follow-pages"),
			MaxPages:    v.GetInt("max-pages"),
			Timeout:     v.GetDuration("upstream-timeout"),
			MaxRetries:  v.GetInt("max-retries"),
		},
	}
}

// dashboardService initializes i18n and builds the walk/report service.
func dashboardService(v *viper.Viper) (*dashboard.Service, error) {
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	loc, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, err
	}
	return dashboard.New(v.GetInt("fan-out"), loc, language.Make(lang)), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	svc, err := dashboardService(v)
	if err != nil {
		return err
	}

	cfg := model.ServerConfig{
		SecureCookies:     v.GetBool("secure-cookies"),
		CacheTTL:          v.GetDuration("cache-ttl"),
		CacheCooldown:     v.GetDuration("cache-cooldown"),
		AtRiskLimit:       v.GetInt("at-risk-limit"),
		RecentLimit:       v.GetInt("recent-limit"),
		ImageAllowedHosts: v.GetStringSlice("image-allowed-hosts"),
	}
	if cfg.AtRiskLimit == 0 {
		cfg.AtRiskLimit = -1
	}
	factory := clientFactory(v)

	h, err := handler.New(db, factory, svc, cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware())
	h.Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server",
		"addr", addr,
		"classroom_url", factory.Options.BaseURL,
		"lang", v.GetString("lang"),
		"timezone", svc.Location.String(),
		"fan_out", svc.FanOut,
		"cache_ttl", v.GetDuration("cache-ttl"),
		"max_retries", factory.Options.MaxRetries,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

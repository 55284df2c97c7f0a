package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"accounts-service/config"
	"accounts-service/db"
	"accounts-service/handlers"
	"accounts-service/middleware"
	"accounts-service/profiles"
	"accounts-service/routes"
	"accounts-service/secretmanager"
	"accounts-service/store"
	"accounts-service/telemetry"

	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	shutdownTimeout   = 10 * time.Second
	startupPingBudget = 2 * time.Second
)

var (
	loadEnv        = godotenv.Load
	loadConfig     = config.Load
	initTelemetry  = telemetry.Init
	connectDB      = db.Connect
	migrateDB      = db.Migrate
	newValkeyStore = store.NewValkeyStore
	setupRoutes    = routes.SetupRoutes
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	getSecret      = secretmanager.GetSecret
	setEnv         = os.Setenv
	logFatal       = log.Fatal
)

type postgresSecret struct {
	Username             string `json:"username"`
	Password             string `json:"password"`
	Engine               string `json:"engine"`
	Host                 string `json:"host"`
	Port                 int    `json:"port"`
	DBInstanceIdentifier string `json:"dbInstanceIdentifier"`
}

func loadSecretMap(secretName string) (map[string]string, error) {
	secretJSON, err := getSecret(secretName)
	if err != nil {
		return nil, err
	}
	secrets := make(map[string]string)
	if err := json.Unmarshal([]byte(secretJSON), &secrets); err != nil {
		return nil, err
	}
	return secrets, nil
}

func setEnvFromMap(values map[string]string) error {
	for key, value := range values {
		if err := setEnv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func validatePostgresSecret(secret postgresSecret) error {
	fields := []struct{ name, value string }{
		{"username", secret.Username},
		{"password", secret.Password},
		{"engine", secret.Engine},
		{"host", secret.Host},
		{"dbInstanceIdentifier", secret.DBInstanceIdentifier},
	}
	var missing []string
	for _, field := range fields {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("postgres secret missing fields: %s", strings.Join(missing, ", "))
	}
	if secret.Port <= 0 || secret.Port > 65535 {
		return fmt.Errorf("postgres secret has invalid port %d", secret.Port)
	}
	return nil
}

func loadPostgresSecret() (postgresSecret, error) {
	raw, err := getSecret("prod/postgres")
	if err != nil {
		return postgresSecret{}, fmt.Errorf("error retrieving Postgres secret: %w", err)
	}
	var secret postgresSecret
	if err := json.Unmarshal([]byte(raw), &secret); err != nil {
		return postgresSecret{}, fmt.Errorf("error parsing Postgres secret JSON: %w", err)
	}
	if err := validatePostgresSecret(secret); err != nil {
		return postgresSecret{}, err
	}
	return secret, nil
}

// loadProdSecrets exports AWS Secrets Manager values as environment variables
// for config.Load. Postgres is required; token and Valkey secrets are not.
func loadProdSecrets() error {
	pg, err := loadPostgresSecret()
	if err != nil {
		return err
	}
	if err := setEnvFromMap(map[string]string{
		"DB_USERNAME":            pg.Username,
		"DB_PASSWORD":            pg.Password,
		"DB_ENGINE":              pg.Engine,
		"DB_HOST":                pg.Host,
		"DB_PORT":                strconv.Itoa(pg.Port),
		"DB_INSTANCE_IDENTIFIER": pg.DBInstanceIdentifier,
	}); err != nil {
		return err
	}

	for _, name := range []string{"prod/jwt", "prod/valkey"} {
		values, err := loadSecretMap(name)
		if err != nil {
			log.Printf("optional secret %s not loaded: %v", name, err)
			continue
		}
		if err := setEnvFromMap(values); err != nil {
			return fmt.Errorf("apply secret %s: %w", name, err)
		}
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logFatal(err)
	}
}

func run(ctx context.Context) error {
	if err := loadEnv(); err != nil {
		log.Println("No .env file found; using system environment variables")
	}
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "dev"
	}
	log.Println("Environment:", appEnv)

	if appEnv == "prod" {
		if err := loadProdSecrets(); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("telemetry error: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("telemetry shutdown error: %v", err)
		}
	}()

	conn, err := connectDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	if cfg.DB.AutoMigrate {
		if err := migrateDB(ctx, conn); err != nil {
			return err
		}
	}

	valkeyStore := newValkeyStore(cfg.Valkey)
	defer valkeyStore.Close()

	pingCtx, cancel := context.WithTimeout(ctx, startupPingBudget)
	if err := valkeyStore.Ping(pingCtx); err != nil {
		log.Printf("Valkey unreachable at startup, profiles will be served from the database: %v", err)
	}
	cancel()

	repo := db.NewProfileRepository(conn)
	cacheStore := profiles.NewCacheStore(repo, valkeyStore, profiles.Options{
		TTL:          cfg.Profile.CacheTTL,
		KeyPrefix:    cfg.Profile.CacheKeyPrefix,
		StoreTimeout: cfg.Profile.StoreTimeout,
		CacheTimeout: cfg.Profile.CacheTimeout,
	})
	router := setupRoutes(cfg, handlers.NewProfileHandler(cacheStore), handlers.NewHealthHandler(repo, valkeyStore))

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newHTTPHandler(cfg, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Starting server on port %s in %s environment (CORS: %s)", port, cfg.AppEnv, strings.Join(cfg.CORS.AllowedOrigins, ","))
	return serve(ctx, srv)
}

// newHTTPHandler wraps the router with CORS, request logging, request ids
// and OpenTelemetry instrumentation, outermost last.
func newHTTPHandler(cfg config.Config, router http.Handler) http.Handler {
	corsOpts := []gorillaHandlers.CORSOption{
		gorillaHandlers.AllowedOrigins(cfg.CORS.AllowedOrigins),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", middleware.RequestIDHeader}),
		gorillaHandlers.ExposedHeaders([]string{middleware.RequestIDHeader}),
		gorillaHandlers.AllowCredentials(),
	}

	var handler http.Handler = gorillaHandlers.CORS(corsOpts...)(router)
	handler = middleware.RequestLogger(handler)
	handler = middleware.RequestID(handler)
	return otelhttp.NewHandler(handler, cfg.Telemetry.ServiceName)
}

// serve runs srv until it fails or ctx is cancelled, then drains in-flight
// requests.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(srv)
	}()

	select {
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Println("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

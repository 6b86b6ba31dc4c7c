package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/firmproof/firmproof/internal/application"
	appanalyses "github.com/firmproof/firmproof/internal/application/analyses"
	appledger "github.com/firmproof/firmproof/internal/application/ledger"
	appsettings "github.com/firmproof/firmproof/internal/application/settings"
	"github.com/firmproof/firmproof/internal/config"
	domain "github.com/firmproof/firmproof/internal/domain/analyses"
	"github.com/firmproof/firmproof/internal/infra/ai/openai"
	"github.com/firmproof/firmproof/internal/infra/cache"
	mysqlp "github.com/firmproof/firmproof/internal/infra/db/mysql"
	postgresp "github.com/firmproof/firmproof/internal/infra/db/postgres"
	"github.com/firmproof/firmproof/internal/infra/eth"
	"github.com/firmproof/firmproof/internal/infra/httpserver"
	minioStore "github.com/firmproof/firmproof/internal/infra/storage"
	"github.com/firmproof/firmproof/internal/middleware"
)

func init() {
	ll, err := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		ll = log.InfoLevel
	}
	log.SetLevel(ll)
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.WithError(err).Fatal("config load error")
	}

	ctx := context.Background()

	// connect database, driver chosen by config
	var (
		db    *sql.DB
		repo  domain.Repository
		fnsRp domain.FunctionRepository
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.WithError(err).Fatal("postgres connect error")
		}
		repo = postgresp.NewAnalysisRepository(db)
		fnsRp = postgresp.NewFunctionRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.WithError(err).Fatal("mysql connect error")
		}
		repo = mysqlp.NewAnalysisRepository(db)
		fnsRp = mysqlp.NewFunctionRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.WithError(err).Fatal("minio init error")
	}

	// init redis: settings override + parked submissions
	rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.WithError(err).Fatal("redis connect error")
	}
	defer rdb.Close()
	kv := cache.NewStore(rdb)

	// init chain adapter
	rpc, err := eth.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.WithError(err).Fatal("chain rpc dial error")
	}
	defer rpc.Close()

	wallet, err := eth.NewKeyedWallet(cfg.Chain.PrivateKey, rpc, nil)
	if err != nil {
		log.WithError(err).Fatal("wallet init error")
	}

	settingsSvc := &appsettings.Service{
		Store:   kv,
		Default: cfg.Chain.ContractAddress,
	}
	resolver := &eth.Resolver{
		Settings: settingsSvc,
		RPC:      rpc,
		Wallet:   wallet,
	}

	// init analysis service, AI optional
	svc := &appanalyses.Service{
		Repo:      repo,
		Functions: fnsRp,
		Binaries:  store,
		Clock:     application.SystemClock{},
	}
	if cfg.OpenAI.APIKey != "" {
		svc.AI = openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	}

	coord := &appledger.Coordinator{
		Wallet:         wallet,
		Contracts:      resolver,
		ConfirmTimeout: cfg.Chain.ConfirmTimeout,
	}

	// follow up on submissions that outlived the confirmation wait
	pollCtx, pollCancel := context.WithCancel(ctx)
	defer pollCancel()
	poller := &appledger.Poller{
		Pending:   kv,
		Contracts: resolver,
		Records:   svc,
		Clock:     application.SystemClock{},
		Interval:  cfg.Chain.PollInterval,
	}
	go poller.Run(pollCtx)

	mux := httpserver.NewRouter(httpserver.Deps{
		Analyses: svc,
		Coord:    coord,
		Settings: settingsSvc,
		Wallet:   wallet,
		Pending:  kv,
		Clock:    application.SystemClock{},
		Balance:  wallet.Balance,
		Health: map[string]middleware.HealthChecker{
			"database": &middleware.DatabaseHealthChecker{DB: db},
			"redis":    &middleware.RedisHealthChecker{Client: rdb},
		},
		Limiter: middleware.NewRateLimiter(20, 10),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout: 15 * time.Second,
		// the ledger write endpoint holds the connection through the
		// confirmation wait
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")
	pollCancel()

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.WithError(err).Error("shutdown error")
	}
}

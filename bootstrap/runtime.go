package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custody_settlement/chain"
	"github.com/custody_settlement/config"
	"github.com/custody_settlement/handler"
	"github.com/custody_settlement/lock"
	"github.com/custody_settlement/logging"
	"github.com/custody_settlement/middleware"
	"github.com/custody_settlement/notify"
	"github.com/custody_settlement/repository"
	"github.com/custody_settlement/router"
	"github.com/custody_settlement/service"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Runtime struct {
	cfg        *config.Config
	log        *logging.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	grpcLis    net.Listener
	health     *health.Server
	cleanups   []func()
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	log := logging.NewLogger(cfg.LogLevel)
	log.WithField("config", cfg.Redact()).Info("starting settlement service")
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	rt := &Runtime{cfg: cfg, log: log}
	if err := rt.build(ctx); err != nil {
		rt.cleanup()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) build(ctx context.Context) error {
	cfg, log := r.cfg, r.log

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		return err
	}
	log.WithField("currencies", policy.Symbols()).Info("currency policy loaded")

	store, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	locker, err := r.openLocker(ctx)
	if err != nil {
		return err
	}

	btcParams, err := chain.BitcoinParams(cfg.BTCNetwork)
	if err != nil {
		return err
	}
	addresses := chain.NewAddressValidator(btcParams)

	executors, verifiers, err := r.chainAdapters(ctx, policy)
	if err != nil {
		return err
	}

	dispatcher, err := r.dispatcher()
	if err != nil {
		return err
	}

	audit := service.NewAuditService(store)
	ledger := service.NewLedgerService(store, policy, audit, log)
	wallets := service.NewWalletService(store, ledger, audit, addresses, cfg.HotWalletCacheTTL, log)
	deposits := service.NewDepositService(store, ledger, audit, wallets, verifiers, dispatcher, cfg.VerifierTimeout, log)
	withdrawals := service.NewWithdrawService(store, ledger, audit, wallets, addresses, executors, locker, dispatcher,
		service.WithdrawServiceConfig{ExecutorTimeout: cfg.ExecutorTimeout, ExecutionLockTTL: cfg.ExecutionLockTTL}, log)

	engine := router.SetupRouter(log,
		middleware.IdentityConfig{JWTSecret: cfg.JWTSecret, TrustGatewayHeaders: cfg.TrustGatewayHeaders},
		handler.NewWalletHandler(ledger, deposits, withdrawals),
		handler.NewAdminHandler(ledger, deposits, withdrawals, wallets, audit))
	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.grpcServer = grpc.NewServer()
	r.health = health.NewServer()
	healthpb.RegisterHealthServer(r.grpcServer, r.health)
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}
	r.grpcLis = lis
	return nil
}

func (r *Runtime) openStore(ctx context.Context) (repository.Store, error) {
	if r.cfg.StoreDriver == "memory" {
		r.log.Warn("using in-memory store; balances are lost on restart")
		return repository.NewMemoryStore(), nil
	}

	if err := runMigrations(r.cfg.MigrationsPath, r.cfg.MigrateURL()); err != nil {
		return nil, err
	}
	db, err := gorm.Open(postgres.Open(r.cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	r.cleanups = append(r.cleanups, func() { _ = sqlDB.Close() })
	return repository.NewGormStore(db), nil
}

func runMigrations(path, url string) error {
	m, err := migrate.New("file://"+path, url)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (r *Runtime) openLocker(ctx context.Context) (lock.Locker, error) {
	addr := r.cfg.RedisAddr()
	if addr == "" {
		r.log.Warn("REDIS_HOST not set; execution locks are process-local")
		return lock.NewLocalLocker(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: r.cfg.RedisPassword})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	r.cleanups = append(r.cleanups, func() { _ = client.Close() })
	return lock.NewRedisLocker(client, "settlement:"), nil
}

// chainAdapters routes each configured currency to the executor named in the
// policy. Currencies whose adapter is not configured are left unrouted and
// fail at execution time.
func (r *Runtime) chainAdapters(ctx context.Context, policy *config.Policy) (*chain.ExecutorRouter, *chain.VerifierRouter, error) {
	cfg, log := r.cfg, r.log
	executors := chain.NewExecutorRouter()
	verifiers := chain.NewVerifierRouter()

	var ethExec *chain.EthExecutor
	var ethVerifier *chain.EthVerifier
	if cfg.EthRPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.EthRPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial ethereum rpc: %w", err)
		}
		r.cleanups = append(r.cleanups, client.Close)
		ethVerifier = chain.NewEthVerifier(client, policy)

		if cfg.HotWalletMnemonic != "" {
			keys, err := chain.NewKeyringFromMnemonic(cfg.HotWalletMnemonic, cfg.HotWalletAccounts)
			if err != nil {
				return nil, nil, fmt.Errorf("hot wallet keyring: %w", err)
			}
			log.WithField("addresses", keys.Addresses()).Info("hot wallet signing keys loaded")
			ethExec = chain.NewEthExecutor(client, keys, cfg.EthChainID, policy)
		}
	}

	var remote *chain.RemoteClient
	if cfg.RemoteExecutorURL != "" {
		remote = chain.NewRemoteClient(cfg.RemoteExecutorURL, cfg.RemoteExecutorToken, cfg.ExecutorTimeout)
	}

	for _, sym := range policy.Symbols() {
		cp, _ := policy.Currency(sym)
		entry := log.WithFields(logrus.Fields{"currency": sym, "executor": cp.Executor})

		switch {
		case cp.Executor == "eth" && ethExec != nil:
			executors.Register(sym, ethExec)
		case cp.Executor == "remote" && remote != nil:
			executors.Register(sym, remote)
		default:
			entry.Warn("no executor configured; withdrawals cannot be executed")
		}

		switch {
		case cp.Chain == config.ChainEthereum && ethVerifier != nil:
			verifiers.Register(sym, ethVerifier)
		case remote != nil:
			verifiers.Register(sym, remote)
		default:
			entry.Warn("no verifier configured; deposit verification unavailable")
		}
	}
	return executors, verifiers, nil
}

func (r *Runtime) dispatcher() (*notify.Dispatcher, error) {
	notifiers := []notify.Notifier{notify.NewLogPublisher(r.log)}
	if brokers := r.cfg.KafkaBrokerList(); len(brokers) > 0 {
		kp, err := notify.NewKafkaPublisher(brokers, r.cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		r.cleanups = append(r.cleanups, func() { _ = kp.Close() })
		notifiers = append(notifiers, kp)
	}
	d := notify.NewDispatcher(r.log, r.cfg.NotifyTimeout, notifiers...)
	// drain in-flight deliveries before the publishers close
	r.cleanups = append(r.cleanups, d.Close)
	return d, nil
}

func (r *Runtime) cleanup() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		r.log.WithField("addr", r.httpServer.Addr).Info("http server started")
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.log.WithField("addr", r.grpcLis.Addr().String()).Info("grpc health server started")
		if err := r.grpcServer.Serve(r.grpcLis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.log.Info("shutdown signal received")
	case runErr = <-errCh:
		r.log.WithError(runErr).Error("server failure")
	}

	r.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.log.WithError(err).Warn("http shutdown")
	}
	r.grpcServer.GracefulStop()
	r.cleanup()
	return runErr
}

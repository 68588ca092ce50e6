package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smithciaran833/TicketTokenFinal/internal/capacity"
	"github.com/smithciaran833/TicketTokenFinal/internal/clock"
	"github.com/smithciaran833/TicketTokenFinal/internal/config"
	"github.com/smithciaran833/TicketTokenFinal/internal/custody"
	"github.com/smithciaran833/TicketTokenFinal/internal/issuance"
	"github.com/smithciaran833/TicketTokenFinal/internal/ledger"
	"github.com/smithciaran833/TicketTokenFinal/internal/logging"
	"github.com/smithciaran833/TicketTokenFinal/internal/migration"
	"github.com/smithciaran833/TicketTokenFinal/internal/notify"
	"github.com/smithciaran833/TicketTokenFinal/internal/proof"
	"github.com/smithciaran833/TicketTokenFinal/internal/queue"
	"github.com/smithciaran833/TicketTokenFinal/internal/storage/postgres"
	"github.com/smithciaran833/TicketTokenFinal/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	bootLog := logging.New("info", false)
	config.LoadEnvFile(bootLog)

	cfg, err := config.FromEnv(bootLog)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		log.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	clk := clock.NewSystem()

	ticketRepo := postgres.NewTicketRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)
	migrationRepo := postgres.NewMigrationRepository(pool)
	catalogRepo := postgres.NewCatalogRepository(pool)

	capLedger := capacity.NewLedger(capacity.NewMemStore(), clk, log, capacity.WithHoldTTL(cfg.HoldTTL))
	if err := seedCapacity(startupCtx, capLedger, catalogRepo, ticketRepo); err != nil {
		log.Fatal().Err(err).Msg("seed capacity ledger")
	}

	vault, err := buildVault(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build custody vault")
	}
	custodySvc := custody.NewService(walletRepo, vault, cfg.WalletSeedPrefix, clk, log)
	treasury := custody.DeriveWallet(cfg.WalletSeedPrefix, "treasury")
	log.Info().Str("treasury", treasury.Address).Msg("platform treasury derived")

	codec := proof.NewCodec(cfg.ProofSecret, clk, proof.WithExpiry(cfg.ProofExpiry))
	chain := ledger.NewDevnet()
	notifier := notify.NewLogNotifier(log)

	store := queue.NewStore(pool, clk)
	runner := queue.NewRunner(store, cfg.Workers, log, queue.WithPollInterval(cfg.PollInterval))

	mintWorker := issuance.NewWorker(ticketRepo, catalogRepo, chain, capLedger, codec, notifier, clk, log)
	runner.Register(queue.KindSingleMint, mintWorker)
	runner.Register(queue.KindBatchMint, mintWorker)

	migrateWorker := migration.NewWorker(migrationRepo, ticketRepo, chain, custodySvc, notifier, log)
	runner.Register(queue.KindMigrateWallet, migrateWorker)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go capLedger.Run(runCtx)

	log.Info().Int("workers", cfg.Workers).Msg("ticketcored running")
	runner.Run(runCtx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown")
	}
	log.Info().Msg("ticketcored stopped")
}

func seedCapacity(ctx context.Context, capLedger *capacity.Ledger, catalog *postgres.CatalogRepository, tickets *postgres.TicketRepository) error {
	tiers, err := catalog.ListTiers(ctx)
	if err != nil {
		return err
	}
	for _, tier := range tiers {
		sold, err := tickets.CountSoldByTier(ctx, tier.EventID, tier.ID)
		if err != nil {
			return err
		}
		capLedger.Register(tier, sold)
	}
	return nil
}

func buildVault(cfg config.Config) (*custody.Vault, error) {
	if cfg.KMSKeyID != "" {
		// No KMS client is wired into this binary yet. Refusing to start
		// beats silently encrypting seeds under the local cipher.
		return nil, errors.New("KMS_KEY_ID is set but no KMS client is configured")
	}
	key := cfg.LocalCipherKey
	if len(key) == 0 {
		// Dev fallback: derive the cipher key from the proof secret so a
		// bare environment still starts.
		derived := sha256.Sum256(cfg.ProofSecret)
		key = derived[:]
	}
	local, err := custody.NewLocalCipher(key)
	if err != nil {
		return nil, err
	}
	return custody.NewVault(local), nil
}

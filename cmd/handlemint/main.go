package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/core-coin/handlemint/internal/availability"
	"github.com/core-coin/handlemint/internal/backup"
	"github.com/core-coin/handlemint/internal/blockchain"
	"github.com/core-coin/handlemint/internal/config"
	"github.com/core-coin/handlemint/internal/handlemint"
	"github.com/core-coin/handlemint/internal/http_api"
	"github.com/core-coin/handlemint/internal/metrics"
	"github.com/core-coin/handlemint/internal/minter"
	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/internal/notificator"
	"github.com/core-coin/handlemint/internal/repository"
	"github.com/core-coin/handlemint/internal/stakepool"
	"github.com/core-coin/handlemint/pkg/logger"
	"github.com/core-coin/handlemint/pkg/validation"
)

func main() {
	app := &cli.App{
		Name:  "handlemint",
		Usage: "Handlemint sells handles, reconciles their payments and mints them on chain",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db-driver", Usage: "Database driver (postgres or sqlite)"},
			&cli.StringFlag{Name: "sqlite-path", Usage: "SQLite database file"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.StringFlag{Name: "blockchain-service-url", Aliases: []string{"b"}, Usage: "Blockchain service URL"},
			&cli.StringFlag{Name: "handle-registry-address", Aliases: []string{"r"}, Usage: "Handle registry contract address"},
			&cli.StringFlag{Name: "minter-url", Aliases: []string{"m"}, Usage: "Minting service URL"},
			&cli.IntFlag{Name: "api-port", Usage: "HTTP API port"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, the job scheduler and the block watcher",
				Action: serve,
			},
			jobCommand(handlemint.JobReconcile, "Reconcile payments once", (*handlemint.Handlemint).ReconcilePayments),
			jobCommand(handlemint.JobMint, "Submit one mint batch", (*handlemint.Handlemint).MintPaidSessions),
			jobCommand(handlemint.JobConfirm, "Check submitted transactions once", (*handlemint.Handlemint).ConfirmMints),
			jobCommand(handlemint.JobRefreshState, "Refresh cached state once", (*handlemint.Handlemint).RefreshState),
			{
				Name:      "import-sessions",
				Usage:     "Bulk insert sessions from a JSON file",
				ArgsUsage: "<file.json>",
				Action:    importSessions,
			},
			{
				Name:      "add-payment-addresses",
				Usage:     "Add payment addresses to the pool, one per line",
				ArgsUsage: "<file>",
				Action:    addPaymentAddresses,
			},
			{
				Name:  "add-wallet",
				Usage: "Register or update a minting wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true, Usage: "Wallet id known to the minting service"},
					&cli.IntFlag{Name: "index", Required: true, Usage: "Wallet derivation index"},
					&cli.StringFlag{Name: "address", Required: true, Usage: "Wallet address"},
					&cli.Int64Flag{Name: "min-balance", Usage: "Minimum balance in minor units"},
				},
				Action: addWallet,
			},
		},
		DefaultCommand: "serve",
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig loads configuration from environment variables and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("db-driver") {
		cfg.DBDriver = c.String("db-driver")
	}
	if c.IsSet("sqlite-path") {
		cfg.SQLitePath = c.String("sqlite-path")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("blockchain-service-url") {
		cfg.BlockchainServiceURL = c.String("blockchain-service-url")
	}
	if c.IsSet("handle-registry-address") {
		cfg.HandleRegistryAddress = c.String("handle-registry-address")
	}
	if c.IsSet("minter-url") {
		cfg.MinterURL = c.String("minter-url")
	}
	if c.IsSet("api-port") {
		cfg.APIPort = c.Int("api-port")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openDB(cfg *config.Config, log *logger.Logger) (*repository.DB, error) {
	if cfg.DBDriver == config.DriverSQLite {
		return repository.NewSQLiteDB(cfg.SQLitePath, log)
	}
	return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
}

// application holds everything a command needs. close releases it in reverse order.
type application struct {
	cfg         *config.Config
	logger      *logger.Logger
	db          *repository.DB
	chain       *blockchain.Gocore
	notificator *notificator.Notificator
	telegram    *notificator.TelegramNotificator
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	handlemint  *handlemint.Handlemint
}

func setup(c *cli.Context, withChain bool) (*application, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	app := &application{cfg: cfg, logger: log, db: db}
	if !withChain {
		return app, nil
	}

	// Initialize blockchain service
	app.chain = blockchain.NewGocore(cfg.BlockchainServiceURL, log, cfg)
	if err := app.chain.Run(); err != nil {
		app.close()
		return nil, err
	}

	// Initialize notificator. Unconfigured channels stay nil interfaces.
	var telegram notificator.TelegramSender
	if cfg.TelegramBotToken != "" {
		app.telegram, err = notificator.NewTelegramNotificator(log, cfg.TelegramBotToken, db)
		if err != nil {
			app.close()
			return nil, err
		}
		telegram = app.telegram
	}
	var email notificator.EmailSender
	if cfg.SMTPHost != "" {
		email = notificator.NewEmailNotificator(log, cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPSender)
	}
	app.notificator = notificator.NewNotificator(log, db, telegram, email, cfg.TelegramAlertChatID, cfg.AlertEmail)
	log.SetAlertSink(app.notificator)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = metrics.New(app.registry)

	app.handlemint = handlemint.NewHandlemint(handlemint.Dependencies{
		Repo:         db,
		Chain:        app.chain,
		Minter:       minter.NewClient(cfg.MinterURL, cfg.MinterToken, log),
		Verifier:     stakepool.NewVerifier(db, log),
		Availability: availability.NewChecker(db, app.chain, availability.DefaultPrices(), availability.DefaultReservedTTL, log),
		Backup:       backup.NewFileBackup(cfg.BackupDir, log),
		Watcher:      blockchain.NewWatcher(app.chain, db, cfg.AmountDecimals, log),
		Metrics:      app.metrics,
	}, log, cfg)
	return app, nil
}

func (a *application) close() {
	if a.handlemint != nil {
		a.handlemint.Wait()
	}
	if a.notificator != nil {
		a.notificator.Wait()
	}
	if a.chain != nil {
		if err := a.chain.Close(); err != nil {
			a.logger.Errorw("Failed to close blockchain client", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Errorw("Failed to close database", "error", err)
	}
	_ = a.logger.SugaredLogger.Sync()
}

func serve(c *cli.Context) error {
	app, err := setup(c, true)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if app.telegram != nil {
		go app.telegram.Start(ctx)
	}

	if !app.cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	apiServer := http_api.NewHTTPServer(app.handlemint, app.metrics.Handler(), app.cfg.APIPort, app.logger)
	go apiServer.Start()

	// Start the application
	err = app.handlemint.Start(ctx)
	if shutdownErr := apiServer.Shutdown(); shutdownErr != nil {
		app.logger.Errorw("Failed to shut down HTTP server", "error", shutdownErr)
	}
	return err
}

// jobCommand runs exactly one cycle of a job and prints its result.
func jobCommand(name, usage string, job func(*handlemint.Handlemint, context.Context) (*models.JobResult, error)) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			app, err := setup(c, true)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := job(app.handlemint, c.Context)
			if result != nil {
				out, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(out))
			}
			if err != nil && !models.IsBenign(err) {
				return err
			}
			return nil
		},
	}
}

func importSessions(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one JSON file argument")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read sessions file: %w", err)
	}
	var sessions []*models.ActiveSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return fmt.Errorf("failed to parse sessions file: %w", err)
	}

	app, err := setup(c, false)
	if err != nil {
		return err
	}
	defer app.close()

	h := handlemint.NewHandlemint(handlemint.Dependencies{Repo: app.db}, app.logger, app.cfg)
	if err := h.ImportSessions(c.Context, sessions); err != nil {
		return err
	}
	app.logger.Infow("Sessions imported", "count", len(sessions))
	return nil
}

func addPaymentAddresses(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one address file argument")
	}
	file, err := os.Open(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open address file: %w", err)
	}
	defer file.Close()

	var addresses []string
	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		address, err := validation.ValidateAndNormalizeAddress(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		addresses = append(addresses, address)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read address file: %w", err)
	}

	app, err := setup(c, false)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.db.AddPaymentAddresses(c.Context, addresses); err != nil {
		return err
	}
	app.logger.Infow("Payment addresses added", "count", len(addresses))
	return nil
}

func addWallet(c *cli.Context) error {
	address, err := validation.ValidateAndNormalizeAddress(c.String("address"))
	if err != nil {
		return fmt.Errorf("invalid wallet address: %w", err)
	}

	app, err := setup(c, false)
	if err != nil {
		return err
	}
	defer app.close()

	wallet := &models.MintingWallet{
		ID:         c.String("id"),
		Index:      c.Int("index"),
		Address:    address,
		MinBalance: c.Int64("min-balance"),
	}
	if err := app.db.UpsertWallet(c.Context, wallet); err != nil {
		return err
	}
	app.logger.Infow("Minting wallet saved", "wallet", wallet.ID, "index", wallet.Index)
	return nil
}

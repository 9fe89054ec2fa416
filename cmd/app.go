package cmd

import (
	"context"
	"errors"
	"fmt"

	"betmirror/application"
	"betmirror/config"
	"betmirror/database"
	"betmirror/domain/interfaces"
	"betmirror/domain/lifecycle"
	"betmirror/domain/services"
	"betmirror/infrastructure"
	"betmirror/infrastructure/chain"
	"betmirror/infrastructure/identity"
	"betmirror/infrastructure/observability"
	"betmirror/repository"

	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

// app holds the wired components shared by the serve, act and reconcile commands
type app struct {
	cfg *config.Config

	db         *database.DB
	natsClient *infrastructure.NATSClient
	ethClient  *ethclient.Client

	publisher  *infrastructure.NATSEventPublisher
	uowFactory *infrastructure.UnitOfWorkFactory
	contract   *chain.Contract
	executor   *chain.Executor
	identity   interfaces.IdentityProvider
	metrics    *observability.MetricsProvider
	machine    *lifecycle.Machine

	transitions *application.BetTransitionService
	queries     *application.BetQueryService
	reconciler  *application.Reconciler
}

// newApp connects to the database, the bus and the chain and builds the services
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	log.Info("Initializing metrics...")
	if err := observability.InitializeGlobalMetrics(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.metrics = observability.GetMetrics()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL(), database.WithMaxConns(cfg.DatabaseMaxConns))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	log.Info("Database connection established successfully")

	var messagePublisher infrastructure.MessagePublisher
	if cfg.NATSServers != "" {
		log.WithField("servers", cfg.NATSServers).Info("Connecting to NATS...")
		client := infrastructure.NewNATSClient(cfg.NATSServers)
		if err := client.Connect(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsClient = client

		subjects := infrastructure.NewEventSubjectMapper().GetAllSubjects()
		if err := client.EnsureStream(infrastructure.BetEventStream, subjects); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to ensure stream %s: %w", infrastructure.BetEventStream, err)
		}
		messagePublisher = client
		log.Info("NATS connection established successfully")
	} else {
		log.Warn("NATS_SERVERS not set, events are delivered in-process only")
	}

	a.publisher = infrastructure.NewNATSEventPublisher(messagePublisher, nil)
	a.uowFactory = infrastructure.NewUnitOfWorkFactory(db, a.publisher)

	log.WithField("contract", cfg.BetContractAddress).Info("Connecting to chain...")
	if a.contract, err = chain.NewContract(cfg.BetContractAddress); err != nil {
		a.close()
		return nil, err
	}
	if a.ethClient, err = chain.Dial(ctx, cfg.ChainRPCURL); err != nil {
		a.close()
		return nil, err
	}

	executorCfg := chain.ExecutorConfig{ChainID: cfg.ChainID, ConfirmationTimeout: cfg.ConfirmationTimeout}
	if cfg.SignerPrivateKey != "" {
		key, err := chain.ParsePrivateKey(cfg.SignerPrivateKey)
		if err != nil {
			a.close()
			return nil, err
		}
		a.executor = chain.NewExecutor(a.ethClient, a.contract, key, executorCfg)
		log.WithField("signer", a.executor.SignerAddress()).Info("Chain executor can sign transactions")
	} else {
		a.executor = chain.NewExecutor(a.ethClient, a.contract, nil, executorCfg)
		log.Info("No signer configured, only client-signed transactions are accepted")
	}

	a.identity = newIdentityProvider(cfg)

	policy := lifecycle.DefaultPolicy()
	policy.NoArbiterCancelDelay = cfg.NoArbiterCancelDelay
	a.machine = lifecycle.NewMachine(policy)

	a.transitions = application.NewBetTransitionService(a.uowFactory, a.machine, a.executor, a.metrics, nil)
	a.queries = application.NewBetQueryService(a.uowFactory, a.machine, a.identity, nil)
	a.reconciler = application.NewReconciler(a.uowFactory, a.executor, a.metrics, nil)

	return a, nil
}

// newIdentityProvider returns a cached identity client, or nil when the
// identity service is not configured
func newIdentityProvider(cfg *config.Config) interfaces.IdentityProvider {
	client, err := identity.NewClient(identity.ClientConfig{
		BaseURL: cfg.IdentityAPIURL,
		APIKey:  cfg.IdentityAPIKey,
	})
	if errors.Is(err, identity.ErrNotConfigured) {
		log.Warn("IDENTITY_API_URL not set, bets are shown without profiles and notifications need stored fids")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("Identity service client unavailable")
		return nil
	}
	return identity.NewCachedProvider(client, cfg.IdentityCacheSize, cfg.IdentityCacheTTL)
}

// startNotifications subscribes the dispatcher to mirror events. With NATS
// the durable consumer delivers them; otherwise they are handled in-process
// after each commit.
func (a *app) startNotifications() error {
	var sender interfaces.NotificationSender = infrastructure.LogNotificationSender{}
	if a.natsClient != nil {
		sender = infrastructure.NewNATSNotificationSender(a.natsClient)
	}

	dispatcher := services.NewNotificationDispatcher(
		repository.NewNotificationLogRepository(a.db),
		sender,
		a.identity,
		a.metrics,
		a.machine,
		nil,
	)

	var subscriber interfaces.EventSubscriber
	if a.natsClient != nil {
		subscriber = infrastructure.NewNATSEventSubscriber(a.natsClient, nil)
	} else {
		subscriber = infrastructure.NewLocalEventSubscriber(a.publisher)
	}
	return application.RegisterApplicationSubscriptions(subscriber, dispatcher)
}

// close releases connections in reverse order of creation
func (a *app) close() {
	if a.ethClient != nil {
		a.ethClient.Close()
	}
	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if a.db != nil {
		log.Info("Closing database connection...")
		a.db.Close()
	}
}

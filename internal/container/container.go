// Package container provides dependency injection for the ecobridge application.
// It centralizes the creation and wiring of all application dependencies,
// making them explicit and testable.
package container

import (
	"fmt"
	"net/http"

	"ecobridge/internal/config"
	"ecobridge/internal/deriv"
	"ecobridge/internal/extractor"
	"ecobridge/internal/fees"
	"ecobridge/internal/httpapi"
	"ecobridge/internal/logging"
	"ecobridge/internal/notification"
	"ecobridge/internal/ocr"
	"ecobridge/internal/orders"
	"ecobridge/internal/payout"
	"ecobridge/internal/pop"
	"ecobridge/internal/store/sqlite"
	"ecobridge/internal/whatsapp"
)

// Container holds all application dependencies and provides methods to access them.
// Container is immutable after creation: fields are private and exposed through getters.
type Container struct {
	logger logging.Logger
	config *config.Config

	store     *sqlite.Store
	feeCache  *fees.CachedRepository
	evaluator *fees.Evaluator
	extractor *extractor.Extractor
	// ocrEngine is nil when OCR is disabled.
	ocrEngine  *ocr.GeminiEngine
	reconciler *pop.Reconciler
	processor  *notification.Processor
	orders     *orders.Service
	messenger  whatsapp.Messenger
	// payout is nil when the trading API is disabled.
	payout *payout.Service
}

// NewContainer creates and wires all application dependencies, opening the database at
// cfg.Database.Path and applying migrations.
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	logger := logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)
	return NewContainerWithLogger(cfg, logger)
}

// NewContainerWithLogger is NewContainer with an explicit logger.
func NewContainerWithLogger(cfg *config.Config, logger logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	logger = logging.OrDefault(logger)

	store, err := sqlite.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	feeCache := fees.NewCachedRepository(store, config.Seconds(cfg.Fees.CacheTTLSeconds))
	evaluator := fees.NewEvaluator(feeCache, logger)
	ext := extractor.New(logger)

	var (
		ocrEngine *ocr.GeminiEngine
		engine    ocr.Engine
	)
	if cfg.OCR.Enabled {
		ocrEngine = ocr.NewGeminiEngine(cfg.OCR.APIKey, cfg.OCR.Model, config.Seconds(cfg.OCR.TimeoutSeconds), logger)
		engine = ocrEngine
		logger.Info("OCR enabled", logging.F("model", cfg.OCR.Model))
	} else {
		logger.Info("OCR disabled, proofs of payment are read from text only")
	}
	reconciler := pop.NewReconciler(engine, ext, logger)

	processor := notification.NewProcessor(store, notification.Options{
		SenderID:       cfg.Provider.SenderID,
		FragmentWindow: config.Seconds(cfg.Provider.FragmentWindowSeconds),
		LowLimit:       cfg.LowLimit(),
	}, logger)

	orderService := orders.NewService(store, evaluator, reconciler, orders.Config{
		Cooldown: config.Seconds(cfg.Orders.CooldownSeconds),
		Minimums: cfg.Minimums(),
	}, logger)

	var messenger whatsapp.Messenger
	if cfg.WhatsApp.Enabled {
		messenger = whatsapp.NewCloudSender(cfg.WhatsApp.APIURL, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.Token,
			config.Seconds(cfg.WhatsApp.TimeoutSeconds), logger)
	} else {
		messenger = whatsapp.NewLogSender(logger)
	}

	var payoutService *payout.Service
	if cfg.Deriv.Enabled {
		client := deriv.NewClient(deriv.Config{
			Endpoint:          cfg.Deriv.Endpoint,
			Origin:            cfg.Deriv.Origin,
			AppID:             cfg.Deriv.AppID,
			Token:             cfg.Deriv.Token,
			AgentLoginID:      cfg.Deriv.AgentLoginID,
			Currency:          cfg.Deriv.Currency,
			Timeout:           config.Seconds(cfg.Deriv.TimeoutSeconds),
			RequestsPerSecond: cfg.Deriv.RequestsPerSecond,
		}, logger)
		payoutService = payout.NewService(orderService, client, messenger, cfg.Orders.SupportContact, logger)
		logger.Info("Trading API payouts enabled", logging.F("agent", cfg.Deriv.AgentLoginID))
	} else {
		logger.Info("Trading API disabled, orders are released manually")
	}

	logger.Info("Container initialized successfully",
		logging.F("database", cfg.Database.Path),
		logging.F("ocr_enabled", cfg.OCR.Enabled),
		logging.F("deriv_enabled", cfg.Deriv.Enabled),
		logging.F("whatsapp_enabled", cfg.WhatsApp.Enabled))

	return &Container{
		logger:     logger,
		config:     cfg,
		store:      store,
		feeCache:   feeCache,
		evaluator:  evaluator,
		extractor:  ext,
		ocrEngine:  ocrEngine,
		reconciler: reconciler,
		processor:  processor,
		orders:     orderService,
		messenger:  messenger,
		payout:     payoutService,
	}, nil
}

// Router builds the HTTP API over the wired services.
func (c *Container) Router() http.Handler {
	deps := httpapi.Deps{
		Notifications:  c.processor,
		Orders:         c.orders,
		Fees:           c.evaluator,
		Health:         c.store,
		MaxUploadBytes: int64(c.config.Server.MaxUploadMB) << 20,
	}
	// A nil *payout.Service must not become a non-nil interface.
	if c.payout != nil {
		deps.Payout = c.payout
	}
	return httpapi.NewRouter(deps, c.logger)
}

// GetLogger returns the container's logger instance.
func (c *Container) GetLogger() logging.Logger {
	return c.logger
}

// GetConfig returns the container's configuration instance.
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetStore returns the sqlite store.
func (c *Container) GetStore() *sqlite.Store {
	return c.store
}

// GetFeeCache returns the cached fee range repository; invalidate it after a schedule import.
func (c *Container) GetFeeCache() *fees.CachedRepository {
	return c.feeCache
}

// GetEvaluator returns the fee evaluator.
func (c *Container) GetEvaluator() *fees.Evaluator {
	return c.evaluator
}

// GetExtractor returns the text extractor.
func (c *Container) GetExtractor() *extractor.Extractor {
	return c.extractor
}

// GetReconciler returns the proof-of-payment reconciler.
func (c *Container) GetReconciler() *pop.Reconciler {
	return c.reconciler
}

// GetProcessor returns the inbound notification processor.
func (c *Container) GetProcessor() *notification.Processor {
	return c.processor
}

// GetOrders returns the order state machine.
func (c *Container) GetOrders() *orders.Service {
	return c.orders
}

// GetMessenger returns the outbound messenger.
func (c *Container) GetMessenger() whatsapp.Messenger {
	return c.messenger
}

// GetPayout returns the payout service, or nil when the trading API is disabled.
func (c *Container) GetPayout() *payout.Service {
	return c.payout
}

// Close releases the OCR client and the database.
func (c *Container) Close() error {
	if c.ocrEngine != nil {
		if err := c.ocrEngine.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close OCR client")
		}
	}
	if err := c.store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	c.logger.Info("Container closed")
	return nil
}

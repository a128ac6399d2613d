package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vocdoni/gofirma/receiptsync/internal/config"
	"github.com/vocdoni/gofirma/receiptsync/internal/crypto/der"
	"github.com/vocdoni/gofirma/receiptsync/internal/net"
	"github.com/vocdoni/gofirma/receiptsync/internal/notify"
	"github.com/vocdoni/gofirma/receiptsync/internal/receipt"
	"github.com/vocdoni/gofirma/receiptsync/internal/storage"
	"github.com/vocdoni/gofirma/receiptsync/internal/storekit"
	"github.com/vocdoni/gofirma/receiptsync/internal/validation"
	"github.com/vocdoni/gofirma/receiptsync/internal/version"
)

// App owns every long-lived collaborator of the service.
type App struct {
	Config    config.Config
	Store     *storage.Store
	Journal   *storage.Journal
	Client    *net.Client
	Retrier   *net.Retrier
	API       *net.API
	Service   *Service
	Observer  *storekit.Observer
	Purchases *PurchaseHandler

	publisher *notify.NATSPublisher
}

type options struct {
	refresher  storekit.Refresher
	registerer prometheus.Registerer
	listeners  []notify.Listener
	kv         storage.KV
}

type Option func(*options)

// WithRefresher sets the platform hook used to obtain a fresh receipt.
func WithRefresher(r storekit.Refresher) Option {
	return func(o *options) { o.refresher = r }
}

// WithRegisterer registers the retry metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithListener(l notify.Listener) Option {
	return func(o *options) { o.listeners = append(o.listeners, l) }
}

// WithKV replaces the configured backend.
func WithKV(kv storage.KV) Option {
	return func(o *options) { o.kv = kv }
}

func NewApp(cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create app data dir: %w", err)
	}

	kv := o.kv
	if kv == nil {
		var err error
		kv, err = openKV(cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.VaultPassphrase != "" {
		kv = storage.NewSealedKV(kv, cfg.VaultPassphrase)
	}
	store := storage.NewStore(kv)

	journal, err := storage.NewJournal(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create journal: %w", err)
	}

	parser, err := newParser(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	var catalog storekit.Catalog = storekit.NewStaticCatalog()
	if cfg.CatalogPath != "" {
		c, err := storekit.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			store.Close()
			return nil, err
		}
		catalog = c
	}

	client := net.NewClient(net.ClientConfig{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.Timeout,
		Concurrency: cfg.Concurrency,
		UserAgent:   version.UserAgent(),
	})
	retrier := net.NewRetrier(client,
		net.WithMaxAttempts(cfg.MaxAttempts),
		net.WithMetrics(net.NewMetrics(o.registerer)),
		net.WithRecorder(journal),
	)
	api := net.NewAPI(retrier)
	dispatcher := validation.NewDispatcher(api, cfg.APIKey, store.AnonymousID)

	a := &App{
		Config:  cfg,
		Store:   store,
		Journal: journal,
		Client:  client,
		Retrier: retrier,
		API:     api,
	}

	listeners := notify.Multi(o.listeners)
	if cfg.NATSURL != "" {
		pub, err := notify.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			store.Close()
			return nil, err
		}
		a.publisher = pub
		listeners = append(listeners, pub)
	}

	source := &storekit.FileSource{
		Path:      cfg.ReceiptPath,
		MaxBytes:  cfg.MaxReceiptBytes,
		Refresher: o.refresher,
	}
	a.Service = &Service{
		apiKey:     cfg.APIKey,
		bundleID:   cfg.BundleID,
		source:     source,
		parser:     parser,
		store:      store,
		api:        api,
		dispatcher: dispatcher,
		listeners:  listeners,
	}
	a.Purchases = NewPurchaseHandler(a.Service, catalog)
	a.Observer = storekit.NewObserver(a.Purchases)

	glog.V(1).Infof("app: ready (store=%s, data=%s)", cfg.Store, cfg.DataDir)
	return a, nil
}

func openKV(cfg config.Config) (storage.KV, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storage.NewMemoryKV(), nil
	case config.StoreRedis:
		return storage.OpenRedis(context.Background(), cfg.RedisURL, storage.DefaultRedisPrefix)
	case config.StoreBolt, "":
		return storage.OpenBolt(filepath.Join(cfg.DataDir, storage.BoltFileName))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func newParser(cfg config.Config) (*receipt.Parser, error) {
	opts := []receipt.ParserOption{
		receipt.WithDecoder(der.NewDecoder(
			der.WithMaxDepth(cfg.MaxDepth),
			der.WithMaxSize(int(cfg.MaxReceiptBytes)),
		)),
	}
	if cfg.TrustedRootsPath != "" {
		pem, err := os.ReadFile(cfg.TrustedRootsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read trusted roots: %w", err)
		}
		roots, err := receipt.LoadRoots(pem)
		if err != nil {
			return nil, err
		}
		opts = append(opts, receipt.WithSignatureVerification(roots))
	}
	return receipt.NewParser(opts...), nil
}

// Close cancels outstanding operations and releases the store and the NATS
// connection.
func (a *App) Close() error {
	a.Retrier.Registry().CancelAll()
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.Store.Close()
}

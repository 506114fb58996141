package main

import (
	"context"
	"fmt"
	"log/slog"

	"SolanaMCP-Agent/internal/actions"
	"SolanaMCP-Agent/internal/cache"
	"SolanaMCP-Agent/internal/chain"
	"SolanaMCP-Agent/internal/config"
	"SolanaMCP-Agent/internal/events"
	"SolanaMCP-Agent/internal/history"
	"SolanaMCP-Agent/internal/observability/alerting"
	"SolanaMCP-Agent/internal/storage/mysql"
	"SolanaMCP-Agent/internal/storage/redis"
	"SolanaMCP-Agent/pkg/logger"
)

// dependencies 汇总两种传输模式共享的后端组件。
type dependencies struct {
	chains  *chain.Registry
	catalog *actions.Catalog
	history history.Store
	cache   cache.Cache
	events  events.Publisher
	alerts  alerting.Dispatcher
	prices  actions.PriceSource
	swapper actions.Swapper
	apiKeys map[string]string

	closers []func() error
}

func buildDependencies(ctx context.Context, cfg *config.Config) (_ *dependencies, err error) {
	deps := &dependencies{}
	defer func() {
		if err != nil {
			deps.Close()
		}
	}()

	catalog, err := actions.LoadCatalog(cfg.Actions.File)
	if err != nil {
		return nil, err
	}
	deps.catalog = catalog

	chains, err := chain.NewRegistry(chain.RegistryConfig{
		DefaultRPCURL: cfg.RPCURL,
		Overrides:     cfg.Chain.Overrides(),
	})
	if err != nil {
		return nil, err
	}
	deps.chains = chains
	deps.closers = append(deps.closers, chains.Close)

	switch cfg.History.Driver {
	case "", "memory":
		deps.history = history.NewMemoryStore(cfg.History.Capacity)
	case "mysql":
		store, err := mysql.NewHistoryStore(ctx, mysql.Config{DSN: cfg.History.DSN})
		if err != nil {
			return nil, err
		}
		deps.history = store
	default:
		return nil, fmt.Errorf("unknown history driver: %s", cfg.History.Driver)
	}
	deps.closers = append(deps.closers, deps.history.Close)

	switch cfg.Cache.Driver {
	case "", "memory":
		deps.cache = cache.NewMemoryCache()
	case "redis":
		c, err := redis.NewCache(ctx, redis.Config{
			Address:  cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPass,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		deps.cache = c
	default:
		return nil, fmt.Errorf("unknown cache driver: %s", cfg.Cache.Driver)
	}
	deps.closers = append(deps.closers, deps.cache.Close)

	switch cfg.Events.Driver {
	case "", "log":
		deps.events = events.NewLogPublisher(logger.Audit())
	case "none":
		deps.events = events.Discard{}
	case "rabbitmq":
		publisher, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.Events.AMQPURL,
			Exchange: cfg.Events.Exchange,
			Durable:  true,
		})
		if err != nil {
			return nil, err
		}
		deps.events = publisher
	default:
		return nil, fmt.Errorf("unknown events driver: %s", cfg.Events.Driver)
	}
	deps.closers = append(deps.closers, deps.events.Close)

	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Audit()}}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerts.WebhookURL})
	}
	deps.alerts = alerting.NewFanout(notifiers...)

	jupiter := actions.NewJupiterClient(actions.WithJupiterAPIKey(cfg.APIKeys.Jupiter))
	deps.prices = actions.NewCachedPrices(jupiter, deps.cache, cfg.Cache.PriceTTL)
	deps.swapper = jupiter
	deps.apiKeys = map[string]string{
		"openai":  cfg.APIKeys.OpenAI,
		"jupiter": cfg.APIKeys.Jupiter,
	}

	logger.Named("main").Info("dependencies ready",
		slog.Int("actions", catalog.Len()),
		slog.Any("clusters", chains.Clusters()),
		slog.String("history", cfg.History.Driver),
		slog.String("cache", cfg.Cache.Driver),
		slog.String("events", cfg.Events.Driver))
	return deps, nil
}

// Close 按创建的逆序释放资源。
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			logger.Named("main").Warn("close dependency", slog.Any("error", err))
		}
	}
	d.closers = nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-opportuci/accounts"
	"github.com/jrsteele09/go-opportuci/ai"
	"github.com/jrsteele09/go-opportuci/apiclient"
	"github.com/jrsteele09/go-opportuci/internal/config"
	apperrors "github.com/jrsteele09/go-opportuci/internal/errors"
	"github.com/jrsteele09/go-opportuci/internal/metrics"
	"github.com/jrsteele09/go-opportuci/opportunities"
	"github.com/jrsteele09/go-opportuci/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app carries what every command needs
type app struct {
	cfg    config.Config
	logger zerolog.Logger
	out    io.Writer

	client        *apiclient.Client
	accounts      *accounts.Service
	opportunities *opportunities.Service
	ai            *ai.Service
}

// connect builds the session store and the API client from configuration.
// The returned func releases the store and stops the metrics endpoint.
func (a *app) connect() (func(), error) {
	store, locker, closeStore, err := newStore(a.cfg)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector()
	metricsSrv := a.serveMetrics(collector)

	options := []apiclient.ClientOption{
		apiclient.WithLogger(a.logger),
		apiclient.WithMetrics(collector),
		apiclient.WithTimeout(a.cfg.GetRequestTimeout()),
		apiclient.WithRefreshTimeout(a.cfg.GetRefreshTimeout()),
		apiclient.WithUserAgent(a.cfg.GetUserAgent()),
		apiclient.WithLogoutHook(func() {
			a.logger.Info().Msg("Session ended, run 'opportuci login' to sign in again")
		}),
	}
	if n := a.cfg.GetMaxTransportRetries(); n > 0 {
		options = append(options, apiclient.WithTransportRetries(n, 0))
	}
	if rps := a.cfg.GetRateLimit(); rps > 0 {
		options = append(options, apiclient.WithRateLimit(rps, a.cfg.GetRateBurst()))
	}
	if skew := a.cfg.GetProactiveRefreshSkew(); skew > 0 {
		options = append(options, apiclient.WithProactiveRefresh(skew))
	}
	if locker != nil {
		options = append(options, apiclient.WithRefreshLocker(locker))
	}

	client, err := apiclient.New(a.cfg.GetBaseURL(), store, options...)
	if err != nil {
		closeStore()
		return nil, err
	}

	a.client = client
	a.accounts = accounts.New(client)
	a.opportunities = opportunities.New(client)
	a.ai = ai.New(client)

	return func() {
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		closeStore()
	}, nil
}

func (a *app) serveMetrics(collector *metrics.Collector) *http.Server {
	addr := a.cfg.GetMetricsAddr()
	if addr == "" {
		return nil
	}

	srv := collector.Server(addr)
	go func() {
		a.logger.Info().Str("addr", addr).Msg("Metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	return srv
}

// newStore picks the session store named by configuration. Redis stores come
// with a Locker so several processes sharing the session refresh only once.
func newStore(c config.StoreConfig) (session.Store, session.Locker, func(), error) {
	switch c.GetSessionStore() {
	case config.StoreMemory:
		return session.NewInMemoryStore(), nil, func() {}, nil
	case config.StoreFile:
		var options []session.FileStoreOption
		if p := c.GetSessionPassphrase(); p != "" {
			options = append(options, session.WithPassphrase(p))
		}
		return session.NewFileStore(c.GetSessionFile(), options...), nil, func() {}, nil
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.GetRedisAddr()})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, nil, fmt.Errorf("[newStore] redis %s: %w", c.GetRedisAddr(), err)
		}
		key := c.GetRedisKey()
		return session.NewRedisStore(rdb, key),
			session.NewRedisLocker(rdb, key, c.GetRefreshLockTTL()),
			func() { _ = rdb.Close() },
			nil
	default:
		return nil, nil, nil, apperrors.Wrapf(apperrors.ErrUnknownStore, "[newStore] %q", c.GetSessionStore())
	}
}

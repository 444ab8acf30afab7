// Command pooldemo runs a connection pool against a live backend, hammers it
// with concurrent checkouts, and periodically prints the pool state as JSON.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/jackc/pgx/v5/pgconn"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/pimeys/tang-go/config"
	"github.com/pimeys/tang-go/internal/observability"
	"github.com/pimeys/tang-go/lib/telemetry"
	"github.com/pimeys/tang-go/pkg/drivers/postgres"
	redisdrv "github.com/pimeys/tang-go/pkg/drivers/redis"
	"github.com/pimeys/tang-go/pkg/drivers/wsstream"
	"github.com/pimeys/tang-go/pkg/pool"
)

const (
	defaultConfigPath = "config/app.yaml"
	shutdownTimeout   = 10 * time.Second
)

func main() {
	var (
		cfgPath    = flag.String("config", defaultConfigPath, "path to the configuration file")
		driver     = flag.String("driver", "redis", "backend driver: postgres, redis, or wsstream")
		target     = flag.String("target", "localhost:6379", "backend address, DSN, or URL")
		workers    = flag.Int("workers", 8, "concurrent checkout workers")
		statsEvery = flag.Duration("stats", 5*time.Second, "state dump interval")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.BuildZapLogger(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build logger: %v\n", err)
		os.Exit(1)
	}
	observability.SetLogger(logger)
	defer logger.Sync()

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("initialise telemetry", observability.Err(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("shut down telemetry", observability.Err(err))
		}
	}()

	if err := run(ctx, cfg, logger, *driver, *target, *workers, *statsEvery); err != nil {
		logger.Error("pooldemo failed", observability.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, logger observability.Logger, driver, target string, workers int, statsEvery time.Duration) error {
	builder := pool.NewBuilder().FromConfig(cfg).Name(driver + "-demo")

	switch driver {
	case "postgres":
		mgr, err := postgres.NewManager(target)
		if err != nil {
			return err
		}
		p, err := pool.Build[*pgconn.PgConn](ctx, builder.ValidateOnCheckout(true), mgr)
		if err != nil {
			return err
		}
		return drive(ctx, logger, p, workers, statsEvery, func(ctx context.Context, conn *pgconn.PgConn) error {
			_, err := conn.Exec(ctx, "select 1").ReadAll()
			return err
		})
	case "redis":
		mgr, err := redisdrv.NewManager(&goredis.Options{Addr: target})
		if err != nil {
			return err
		}
		defer mgr.Shutdown()
		p, err := pool.Build[*goredis.Conn](ctx, builder.ValidateOnCheckout(true), mgr)
		if err != nil {
			return err
		}
		return drive(ctx, logger, p, workers, statsEvery, func(ctx context.Context, conn *goredis.Conn) error {
			return conn.Ping(ctx).Err()
		})
	case "wsstream":
		mgr, err := wsstream.NewManager(target, nil)
		if err != nil {
			return err
		}
		p, err := pool.Build[*websocket.Conn](ctx, builder, mgr)
		if err != nil {
			return err
		}
		return drive(ctx, logger, p, workers, statsEvery, func(ctx context.Context, conn *websocket.Conn) error {
			if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				return err
			}
			_, _, err := conn.Read(ctx)
			return err
		})
	default:
		return fmt.Errorf("unknown driver %q: want postgres, redis, or wsstream", driver)
	}
}

// drive runs checkout workers and a state reporter until ctx is done, then
// closes the pool.
func drive[C any](ctx context.Context, logger observability.Logger, p *pool.Pool[C], workers int, statsEvery time.Duration, use func(context.Context, C) error) error {
	logger.Info("pool started",
		observability.String("pool", p.Name()),
		observability.Int("workers", workers))

	grp, grpCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		grp.Go(func() error {
			for {
				select {
				case <-grpCtx.Done():
					return nil
				default:
				}
				if err := checkoutOnce(grpCtx, p, use); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("checkout", observability.Err(err))
				}
			}
		})
	}
	grp.Go(func() error {
		ticker := time.NewTicker(statsEvery)
		defer ticker.Stop()
		for {
			select {
			case <-grpCtx.Done():
				return nil
			case <-ticker.C:
				if err := pool.WriteJSON(os.Stdout, p.State()); err != nil {
					return err
				}
				fmt.Println()
			}
		}
	})

	err := grp.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := p.Close(shutdownCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func checkoutOnce[C any](ctx context.Context, p *pool.Pool[C], use func(context.Context, C) error) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}
	if err := use(ctx, conn.Raw()); err != nil {
		conn.Discard()
		return err
	}
	conn.Release()
	return nil
}

// Command questline 运行任务完成 Saga 的示例进程.
//
// 进程提供 Saga 审计查询接口和 Prometheus 指标，按配置选择审计存储和事件投递方式，
// 启动时可选执行一组示例任务，并通过定时任务清理过期的审计记录.
//
//	questline -config configs/questline.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/questline/app"
	"github.com/Tsukikage7/questline/config"
	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/metrics"
	"github.com/Tsukikage7/questline/mission"
	"github.com/Tsukikage7/questline/saga"
	"github.com/Tsukikage7/questline/server"
	"github.com/Tsukikage7/questline/storage/redisstore"
	"github.com/Tsukikage7/questline/tracing"
)

func main() {
	configPath := flag.String("config", "configs/questline.yaml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "questline: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := config.Load[Settings](configPath,
		config.WithOverlay(config.LocalOverlay(configPath)),
		config.WithEnvPrefix("QUESTLINE"),
	)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(&settings.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	var cleanups []cleanup

	tp, err := tracing.NewTracerProvider(&settings.Tracing, settings.Name, settings.Version)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, cleanup{"tracer", tp.Shutdown})

	collector, err := metrics.NewPrometheus(&settings.Metrics)
	if err != nil {
		return err
	}

	var rdb redis.UniversalClient
	if needsRedis(settings) {
		rdb, err = redisstore.NewClient(&settings.Redis, log)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, cleanup{"redis", func(context.Context) error { return rdb.Close() }})
	}

	store, storeCleanups, err := buildStore(ctx, settings, rdb, log)
	if err != nil {
		return fmt.Errorf("build %s store: %w", settings.Store.Type, err)
	}
	log.With(logger.String("store", settings.Store.Type)).Info("[App] 审计存储已就绪")

	bus, eventCleanups, err := buildEvents(settings, collector, tp, log)
	if err != nil {
		return err
	}

	// 事件先于存储和连接释放
	cleanups = append(append(eventCleanups, storeCleanups...), cleanups...)

	sagaOpts := []saga.Option{
		saga.WithStore(store),
		saga.WithLogger(log),
		saga.WithPublisher(saga.PublishTo(bus)),
		saga.WithMetrics(collector),
		saga.WithTracer(tracing.SagaTracer(tp)),
	}
	if settings.Saga.FailedEvents {
		sagaOpts = append(sagaOpts, saga.WithFailedEvents())
	}
	orch, err := mission.NewCompletionSaga(newDemoDeps(log), sagaOpts...)
	if err != nil {
		return err
	}

	sched, err := buildScheduler(settings, store, rdb, log)
	if err != nil {
		return err
	}

	admin, err := server.NewAdminHandler(store,
		server.WithMetrics(collector),
		server.WithTracerProvider(tp),
		server.WithAdminLogger(log),
		server.WithListLimit(settings.Admin.ListLimit, settings.Admin.MaxListLimit),
	)
	if err != nil {
		return err
	}
	httpSrv, err := server.NewHTTP(admin,
		server.WithHTTPName("admin"),
		server.WithHTTPConfig(settings.Admin.HTTPConfig),
		server.WithHTTPLogger(log),
	)
	if err != nil {
		return err
	}

	opts := []app.Option{
		app.Name(settings.Name),
		app.Version(settings.Version),
		app.Logger(log),
	}
	for i, c := range cleanups {
		opts = append(opts, app.RegisterCleanup(c.name, c.fn, i))
	}

	application, err := app.New(opts...)
	if err != nil {
		return err
	}

	application.Use(
		httpSrv,
		app.Func("scheduler",
			func(context.Context) error { return sched.Start() },
			sched.Shutdown,
		),
	)

	if settings.Metrics.Addr != "" && settings.Metrics.Addr != settings.Admin.Addr {
		metricsSrv, err := server.NewHTTP(collector.Handler(),
			server.WithHTTPName("metrics"),
			server.WithHTTPAddr(settings.Metrics.Addr),
			server.WithHTTPLogger(log),
		)
		if err != nil {
			return err
		}
		application.Use(metricsSrv)
	}

	if settings.Demo.Enabled {
		application.Use(app.Func("demo", func(ctx context.Context) error {
			return runDemo(ctx, orch, settings.Demo.Users, log)
		}, nil))
	}

	return application.Run(ctx)
}

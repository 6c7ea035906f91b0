package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tsukikage7/questline/app"
	"github.com/Tsukikage7/questline/database"
	"github.com/Tsukikage7/questline/eventbus"
	"github.com/Tsukikage7/questline/lock"
	"github.com/Tsukikage7/questline/logger"
	"github.com/Tsukikage7/questline/messaging"
	"github.com/Tsukikage7/questline/metrics"
	"github.com/Tsukikage7/questline/saga"
	"github.com/Tsukikage7/questline/scheduler"
	"github.com/Tsukikage7/questline/storage/mongodb"
	"github.com/Tsukikage7/questline/storage/redisstore"
	"github.com/Tsukikage7/questline/storage/s3"
	"github.com/Tsukikage7/questline/storage/sqlstore"
)

// cleanup 组件释放函数，由 app 在停止阶段按优先级执行.
type cleanup struct {
	name string
	fn   app.CleanupFunc
}

func needsRedis(s *Settings) bool {
	return s.Store.Type == StoreRedis || s.Scheduler.Distributed
}

// buildStore 按 store.type 创建审计存储.
func buildStore(ctx context.Context, s *Settings, rdb redis.UniversalClient, log logger.Logger) (saga.Store, []cleanup, error) {
	switch s.Store.Type {
	case StoreRedis:
		opts := []redisstore.Option{redisstore.WithTTL(s.Store.Retention)}
		if s.Redis.KeyPrefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(s.Redis.KeyPrefix))
		}
		store, err := redisstore.New(rdb, opts...)
		return store, nil, err

	case StoreSQL:
		db, err := database.NewDatabase(&s.Store.SQL, log)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlstore.New(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, []cleanup{{"database", func(context.Context) error { return db.Close() }}}, nil

	case StoreMongo:
		client, err := mongodb.NewClient(&s.Store.Mongo, log)
		if err != nil {
			return nil, nil, err
		}
		store, err := mongodb.NewStore(
			client.Collection(s.Store.Mongo.Collection),
			mongodb.WithRetention(s.Store.Retention),
		)
		if err == nil {
			err = store.EnsureIndexes(ctx)
		}
		if err != nil {
			_ = client.Close(ctx)
			return nil, nil, err
		}
		return store, []cleanup{{"mongodb", client.Close}}, nil

	case StoreS3:
		api, err := s3.NewClient(&s.Store.S3, log)
		if err != nil {
			return nil, nil, err
		}
		store, err := s3.NewArchive(api, s.Store.S3.Bucket, s.Store.S3.Prefix)
		return store, nil, err

	default:
		return saga.NewMemoryStore(), nil, nil
	}
}

// buildEvents 创建进程内事件总线，按 events.type 把事件转发到 Kafka 或 RabbitMQ.
func buildEvents(
	s *Settings,
	collector *metrics.PrometheusCollector,
	tp trace.TracerProvider,
	log logger.Logger,
) (*eventbus.Bus, []cleanup, error) {
	busOpts := []eventbus.Option{eventbus.WithLogger(log)}
	if s.Events.Async > 0 {
		busOpts = append(busOpts, eventbus.WithAsync(s.Events.Async))
	}
	bus, err := eventbus.New(busOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create event bus: %w", err)
	}
	cleanups := []cleanup{{"eventbus", func(context.Context) error { return bus.Close() }}}

	bus.SubscribeAll(func(ctx context.Context, ev saga.Event) error {
		log.WithContext(ctx).With(
			logger.SagaID(ev.SagaID),
			logger.SagaType(ev.SagaType),
			logger.String("event", ev.Name),
		).Info("[EventBus] 事件已发布")
		return nil
	})

	if s.Events.Type == EventsBus {
		return bus, cleanups, nil
	}

	cfg := s.Events.Messaging
	cfg.Type = s.Events.Type
	producer, err := messaging.NewProducer(&cfg,
		messaging.WithProducerLogger(log),
		messaging.WithProducerTracing(tp),
	)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("create %s producer: %w", cfg.Type, err)
	}
	sink, err := messaging.NewEventSink(producer,
		messaging.WithTransport(cfg.Type),
		messaging.WithTopicPrefix(cfg.TopicPrefix),
		messaging.WithEventRecorder(collector),
		messaging.WithSinkLogger(log),
	)
	if err != nil {
		_ = producer.Close()
		_ = bus.Close()
		return nil, nil, err
	}
	bus.SubscribeAll(sink.Publish)

	// 按顺序释放，总线排空后再关闭生产者
	cleanups = append(cleanups, cleanup{"event-sink", func(context.Context) error { return sink.Close() }})
	return bus, cleanups, nil
}

// buildScheduler 创建调度器，存储支持清理且配置了保留时长时注册审计清理任务.
func buildScheduler(s *Settings, store saga.Store, rdb redis.UniversalClient, log logger.Logger) (*scheduler.Scheduler, error) {
	opts := []scheduler.Option{scheduler.WithLogger(log)}
	if s.Scheduler.Distributed {
		locker, err := lock.NewRedis(rdb, lock.WithKeyPrefix(s.Name+":lock:"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, scheduler.WithLocker(locker))
	}

	sched, err := scheduler.New(opts...)
	if err != nil {
		return nil, err
	}

	purger, ok := store.(saga.Purger)
	if !ok || s.Scheduler.PurgeSchedule == "" || s.Store.Retention <= 0 {
		log.With(logger.String("store", s.Store.Type)).Info("[Scheduler] 未注册审计清理任务")
		return sched, nil
	}

	job, err := scheduler.NewPurgeJob(s.Scheduler.PurgeSchedule, purger, s.Store.Retention, log)
	if err != nil {
		return nil, err
	}
	if err := sched.Add(job); err != nil {
		return nil, err
	}
	return sched, nil
}

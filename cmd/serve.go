package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/consumer"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/gateway"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/kafka"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/postgres"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/redis"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/restaurant"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/timer"
	"github.com/YelzhanWeb/fooddelivery/internal/app/delivery"
	"github.com/YelzhanWeb/fooddelivery/internal/app/kitchen"
	"github.com/YelzhanWeb/fooddelivery/internal/app/notification"
	"github.com/YelzhanWeb/fooddelivery/internal/app/order"
	"github.com/YelzhanWeb/fooddelivery/internal/app/outbox"
	"github.com/YelzhanWeb/fooddelivery/internal/app/payment"
	"github.com/YelzhanWeb/fooddelivery/internal/app/tracking"
	"github.com/YelzhanWeb/fooddelivery/internal/catalog"
	"github.com/YelzhanWeb/fooddelivery/internal/config"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/spf13/cobra"

	goredis "github.com/go-redis/redis/v8"

	httpAdapter "github.com/YelzhanWeb/fooddelivery/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run one service of the saga",
		Long: `Run one service of the saga.

Modes:
  order-service, payment-service, kitchen-service, delivery-service,
  notification-service, notification-subscriber, restaurant-service,
  standalone (every service in one process on in-memory adapters)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			lgr := logger.NewWithWriter(mode, os.Stdout, logger.ParseLevel(cfg.Log.Level))

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			switch mode {
			case consumer.GroupOrder:
				return runOrderService(ctx, cfg, lgr)
			case consumer.GroupPayment:
				return runPaymentService(ctx, cfg, lgr)
			case consumer.GroupKitchen:
				return runKitchenService(ctx, cfg, lgr)
			case consumer.GroupDelivery:
				return runDeliveryService(ctx, cfg, lgr)
			case consumer.GroupNotification:
				return runNotificationService(ctx, cfg, lgr)
			case "notification-subscriber":
				return runNotificationSubscriber(ctx, cfg, lgr)
			case "restaurant-service":
				return runRestaurantService(ctx, cfg, lgr)
			case "standalone":
				return runStandalone(ctx, cfg, lgr)
			default:
				return fmt.Errorf("invalid mode: %q", mode)
			}
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "service mode")
	cmd.Flags().Int("port", 3000, "HTTP port (overrides http.port)")
	cmd.MarkFlagRequired("mode")

	return cmd
}

// infra holds the connections shared by the saga services.
type infra struct {
	cfg        *config.Config
	lgr        logger.Logger
	db         postgres.DB
	publisher  interfaces.EventPublisher
	subscriber *kafka.Subscriber
	rdb        *goredis.Client
}

func openInfra(ctx context.Context, cfg *config.Config, lgr logger.Logger) (*infra, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})

	publisher, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	lgr.Info("kafka_connected", "Connected to Kafka", "startup", map[string]interface{}{
		"brokers": cfg.Kafka.Brokers,
	})

	in := &infra{
		cfg:        cfg,
		lgr:        lgr,
		db:         db,
		publisher:  publisher,
		subscriber: kafka.NewSubscriber(cfg.Kafka, lgr),
	}

	if cfg.Scheduler.Backend == "redis" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			in.close()
			return nil, err
		}
		in.rdb = rdb
	}
	return in, nil
}

// scheduler returns the configured backend; namespace keeps one service's
// redis tasks apart from another's.
func (in *infra) scheduler(namespace string) interfaces.Scheduler {
	if in.rdb != nil {
		return redis.NewScheduler(in.rdb, namespace, in.cfg.Scheduler.PollInterval, in.lgr)
	}
	return timer.NewScheduler(in.lgr)
}

func (in *infra) close() {
	if err := in.subscriber.Close(); err != nil {
		in.lgr.Error("shutdown_error", "Failed to close Kafka consumer", "shutdown", nil, err)
	}
	if err := in.publisher.Close(); err != nil {
		in.lgr.Error("shutdown_error", "Failed to close Kafka producer", "shutdown", nil, err)
	}
	if in.rdb != nil {
		in.rdb.Close()
	}
	in.db.Close()
}

// service describes what one saga process consumes, serves and runs.
type service struct {
	name      string
	router    *consumer.Router
	routes    []httpAdapter.Routes
	scheduler interfaces.Scheduler
	jobs      []func(ctx context.Context)
}

// run serves svc until ctx ends. Shutdown stops intake first, then waits
// for scheduled tasks, then lets the relay flush what they wrote.
func (in *infra) run(ctx context.Context, svc service) error {
	relay := outbox.NewRelay(postgres.NewOutboxRepository(in.db), in.publisher, svc.name, in.cfg.Outbox.BatchSize, in.cfg.Outbox.PollInterval, in.lgr)

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var jobs sync.WaitGroup
	for _, job := range append([]func(context.Context){relay.Run}, svc.jobs...) {
		jobs.Add(1)
		go func(job func(context.Context)) {
			defer jobs.Done()
			job(jobsCtx)
		}(job)
	}

	if svc.router != nil {
		if err := in.subscriber.Subscribe(ctx, svc.router.Topics(), svc.name, svc.router.Handle); err != nil {
			cancelJobs()
			jobs.Wait()
			return err
		}
	}

	server := httpAdapter.NewServer(in.cfg.HTTP, in.lgr, svc.routes...)
	err := serveHTTP(ctx, server, in.lgr, svc.name)

	if svc.scheduler != nil {
		svc.scheduler.Stop()
	}
	cancelJobs()
	jobs.Wait()
	return err
}

// serveHTTP listens until ctx ends, then shuts the server down gracefully.
func serveHTTP(ctx context.Context, server *http.Server, lgr logger.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	lgr.Info("service_started", fmt.Sprintf("%s started on %s", name, server.Addr), "startup", map[string]interface{}{
		"addr": server.Addr,
	})

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	lgr.Info("shutdown_initiated", fmt.Sprintf("Shutting down %s", name), "shutdown", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.Error("shutdown_error", "Error during shutdown", "shutdown", nil, err)
		return err
	}
	return nil
}

func runOrderService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	in, err := openInfra(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer in.close()

	restaurants := restaurant.NewClient(cfg.Restaurant.BaseURL, cfg.Restaurant.Timeout)
	orderService := order.NewService(postgres.NewOrderRepository(in.db), restaurants, lgr)

	return in.run(ctx, service{
		name:   consumer.GroupOrder,
		router: consumer.OrderRoutes(orderService, lgr),
		routes: []httpAdapter.Routes{httpAdapter.NewOrderHandler(orderService, lgr)},
	})
}

func runPaymentService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	in, err := openInfra(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer in.close()

	scheduler := in.scheduler(consumer.GroupPayment)
	paymentService := payment.NewService(
		postgres.NewPaymentRepository(in.db),
		gateway.NewSimulated(cfg.Payment),
		scheduler,
		lgr,
		cfg.Payment.WebhookSecret,
	)

	return in.run(ctx, service{
		name:      consumer.GroupPayment,
		router:    consumer.PaymentRoutes(paymentService, lgr),
		routes:    []httpAdapter.Routes{httpAdapter.NewPaymentHandler(paymentService, lgr)},
		scheduler: scheduler,
	})
}

func runKitchenService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	in, err := openInfra(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer in.close()

	scheduler := in.scheduler(consumer.GroupKitchen)
	kitchenService := kitchen.NewService(postgres.NewKitchenRepository(in.db), scheduler, lgr, cfg.Kitchen.MinPrepTime, cfg.Kitchen.MaxPrepTime)

	if err := kitchenService.Start(ctx); err != nil {
		scheduler.Stop()
		return fmt.Errorf("failed to recover kitchen orders: %w", err)
	}

	return in.run(ctx, service{
		name:      consumer.GroupKitchen,
		router:    consumer.KitchenRoutes(kitchenService, lgr),
		routes:    []httpAdapter.Routes{httpAdapter.NewKitchenHandler(kitchenService, lgr)},
		scheduler: scheduler,
	})
}

func runDeliveryService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	in, err := openInfra(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer in.close()

	scheduler := in.scheduler(consumer.GroupDelivery)
	drivers := postgres.NewDriverRepository(in.db)
	deliveryService := delivery.NewService(postgres.NewDeliveryRepository(in.db), drivers, scheduler, lgr, deliveryOptions(cfg))
	trackingService := tracking.NewService(drivers, cfg.Delivery.HeartbeatTimeout, lgr)

	return in.run(ctx, service{
		name:      consumer.GroupDelivery,
		router:    consumer.DeliveryRoutes(deliveryService, lgr),
		routes:    []httpAdapter.Routes{httpAdapter.NewDeliveryHandler(deliveryService, trackingService, lgr)},
		scheduler: scheduler,
		jobs: []func(context.Context){
			func(ctx context.Context) {
				deliveryService.RunSweeps(ctx, cfg.Delivery.ReconcileInterval, cfg.Delivery.RescanInterval)
			},
		},
	})
}

func deliveryOptions(cfg *config.Config) delivery.Options {
	return delivery.Options{
		MinETA:            cfg.Delivery.MinETA,
		MaxETA:            cfg.Delivery.MaxETA,
		AcceptanceTimeout: cfg.Delivery.AcceptanceTimeout,
	}
}

func runNotificationService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer mqConn.Close()

	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})

	notificationService := notification.NewService(rabbitmq.NewNotificationSink(mqConn), lgr)
	router := consumer.NotificationRoutes(notificationService, lgr)

	subscriber := kafka.NewSubscriber(cfg.Kafka, lgr)
	if err := subscriber.Subscribe(ctx, router.Topics(), consumer.GroupNotification, router.Handle); err != nil {
		return err
	}

	lgr.Info("service_started", "Notification Service started", "startup", map[string]interface{}{
		"topics": router.Topics(),
	})

	<-ctx.Done()
	lgr.Info("shutdown_initiated", "Shutting down Notification Service", "shutdown", nil)
	return subscriber.Close()
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	mqConn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer mqConn.Close()

	printer := notification.NewPrinter(os.Stdout, lgr)
	notifications := rabbitmq.NewNotificationConsumer(mqConn, lgr)

	lgr.Info("service_started", "Notification Subscriber started", "startup", nil)

	err = notifications.ConsumeNotifications(ctx, printer.HandleNotification)
	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runRestaurantService(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return err
	}

	server := httpAdapter.NewServer(cfg.HTTP, lgr, httpAdapter.NewRestaurantHandler(cat, lgr))
	return serveHTTP(ctx, server, lgr, "restaurant-service")
}

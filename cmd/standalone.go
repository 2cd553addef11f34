package main

import (
	"context"
	"sync"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/consumer"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/gateway"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/memory"
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

	httpAdapter "github.com/YelzhanWeb/fooddelivery/internal/adapter/http"
)

// runStandalone runs every service in one process on the in-memory store,
// bus and timers. The catalog stands in for the restaurant service.
func runStandalone(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		return err
	}

	store := memory.NewStore()
	bus := memory.NewBus(lgr)
	scheduler := timer.NewScheduler(lgr)

	fleet, err := cat.Fleet()
	if err != nil {
		return err
	}
	if _, err := seedDrivers(ctx, store.Drivers(), fleet); err != nil {
		return err
	}

	orderService := order.NewService(store.Orders(), cat, lgr)
	paymentService := payment.NewService(store.Payments(), gateway.NewSimulated(cfg.Payment), scheduler, lgr, cfg.Payment.WebhookSecret)
	kitchenService := kitchen.NewService(store.Kitchen(), scheduler, lgr, cfg.Kitchen.MinPrepTime, cfg.Kitchen.MaxPrepTime)
	deliveryService := delivery.NewService(store.Deliveries(), store.Drivers(), scheduler, lgr, deliveryOptions(cfg))
	notificationService := notification.NewService(nil, lgr)
	trackingService := tracking.NewService(store.Drivers(), cfg.Delivery.HeartbeatTimeout, lgr)

	routers := map[string]*consumer.Router{
		consumer.GroupOrder:        consumer.OrderRoutes(orderService, lgr),
		consumer.GroupPayment:      consumer.PaymentRoutes(paymentService, lgr),
		consumer.GroupKitchen:      consumer.KitchenRoutes(kitchenService, lgr),
		consumer.GroupDelivery:     consumer.DeliveryRoutes(deliveryService, lgr),
		consumer.GroupNotification: consumer.NotificationRoutes(notificationService, lgr),
	}
	for group, router := range routers {
		if err := bus.Subscribe(ctx, router.Topics(), group, router.Handle); err != nil {
			return err
		}
	}

	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	var jobs sync.WaitGroup
	start := func(job func(context.Context)) {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			job(jobsCtx)
		}()
	}

	for _, source := range []string{consumer.GroupOrder, consumer.GroupPayment, consumer.GroupKitchen, consumer.GroupDelivery} {
		start(outbox.NewRelay(store.Outbox(), bus, source, cfg.Outbox.BatchSize, cfg.Outbox.PollInterval, lgr).Run)
	}
	start(bus.Run)
	start(func(ctx context.Context) {
		deliveryService.RunSweeps(ctx, cfg.Delivery.ReconcileInterval, cfg.Delivery.RescanInterval)
	})

	server := httpAdapter.NewServer(cfg.HTTP, lgr,
		httpAdapter.NewOrderHandler(orderService, lgr),
		httpAdapter.NewPaymentHandler(paymentService, lgr),
		httpAdapter.NewKitchenHandler(kitchenService, lgr),
		httpAdapter.NewDeliveryHandler(deliveryService, trackingService, lgr),
		httpAdapter.NewRestaurantHandler(cat, lgr),
	)
	err = serveHTTP(ctx, server, lgr, "standalone")

	scheduler.Stop()
	cancelJobs()
	jobs.Wait()
	bus.Close()
	return err
}

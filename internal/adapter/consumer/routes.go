package consumer

import (
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/app/delivery"
	"github.com/YelzhanWeb/fooddelivery/internal/app/kitchen"
	"github.com/YelzhanWeb/fooddelivery/internal/app/notification"
	"github.com/YelzhanWeb/fooddelivery/internal/app/order"
	"github.com/YelzhanWeb/fooddelivery/internal/app/payment"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Consumer group ids, one per service.
const (
	GroupOrder        = "order-service"
	GroupPayment      = "payment-service"
	GroupKitchen      = "kitchen-service"
	GroupDelivery     = "delivery-service"
	GroupNotification = "notification-service"
)

func OrderRoutes(svc *order.Service, logger logger.Logger) *Router {
	r := NewRouter(logger)
	On(r, interfaces.TopicPaymentProcessed, svc.HandlePaymentProcessed)
	On(r, interfaces.TopicDeliveryPickedUp, svc.HandleDeliveryPickedUp)
	On(r, interfaces.TopicDeliveryCompleted, svc.HandleDeliveryCompleted)
	return r
}

func PaymentRoutes(svc *payment.Service, logger logger.Logger) *Router {
	r := NewRouter(logger)
	On(r, interfaces.TopicOrderCreated, svc.HandleOrderCreated)
	return r
}

func KitchenRoutes(svc *kitchen.Service, logger logger.Logger) *Router {
	r := NewRouter(logger)
	On(r, interfaces.TopicOrderConfirmed, svc.HandleOrderConfirmed)
	return r
}

func DeliveryRoutes(svc *delivery.Service, logger logger.Logger) *Router {
	r := NewRouter(logger)
	On(r, interfaces.TopicFoodReady, svc.HandleFoodReady)
	return r
}

// NotificationRoutes listens to every saga topic.
func NotificationRoutes(svc *notification.Service, logger logger.Logger) *Router {
	r := NewRouter(logger)
	for _, topic := range interfaces.AllTopics {
		r.Raw(topic, svc.Handle)
	}
	return r
}

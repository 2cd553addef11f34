package tracking

import (
	"context"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

const (
	DriverAvailable = "available"
	DriverBusy      = "busy"
	DriverOffline   = "offline"
	// DriverStale is an on-duty driver whose heartbeat stopped.
	DriverStale = "stale"
)

type Service struct {
	drivers          interfaces.DriverRepository
	heartbeatTimeout time.Duration
	logger           logger.Logger
	now              func() time.Time
}

func NewService(drivers interfaces.DriverRepository, heartbeatTimeout time.Duration, logger logger.Logger) *Service {
	return &Service{
		drivers:          drivers,
		heartbeatTimeout: heartbeatTimeout,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) GetDriversStatus(ctx context.Context) ([]*interfaces.DriverRosterEntry, error) {
	drivers, err := s.drivers.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]*interfaces.DriverRosterEntry, 0, len(drivers))
	for _, d := range drivers {
		resp = append(resp, &interfaces.DriverRosterEntry{
			DriverID:        d.ID,
			Name:            d.Name,
			Status:          s.status(d),
			Rating:          d.Rating,
			TotalDeliveries: d.TotalDeliveries,
			Location:        d.Location,
			LastSeen:        d.LastSeen,
		})
	}
	return resp, nil
}

func (s *Service) status(d *domain.Driver) string {
	switch {
	case !d.OnDuty:
		return DriverOffline
	case s.heartbeatTimeout > 0 && s.now().Sub(d.LastSeen) > s.heartbeatTimeout:
		return DriverStale
	case d.IsAvailable:
		return DriverAvailable
	default:
		return DriverBusy
	}
}

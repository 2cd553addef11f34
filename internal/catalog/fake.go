package catalog

import (
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/jaswdr/faker"
)

var vehicles = []string{"bicycle", "scooter", "motorbike", "car"}

// FakeFleet generates n on-duty drivers around center.
func FakeFleet(n int, center domain.Location) ([]*domain.Driver, error) {
	fake := faker.New()

	out := make([]*domain.Driver, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("driver-%s", fake.UUID().V4()[:8])
		driver, err := domain.NewDriver(id, fake.Person().Name(), fake.Float64(1, 3, 5))
		if err != nil {
			return nil, err
		}
		driver.Phone = fake.Phone().Number()
		driver.Vehicle = fake.RandomStringElement(vehicles)
		driver.LicensePlate = fake.Bothify("??-####")
		driver.TotalDeliveries = fake.IntBetween(0, 500)
		driver.Location = domain.Location{
			Lat: center.Lat + fake.Float64(4, -5, 5)/100,
			Lon: center.Lon + fake.Float64(4, -5, 5)/100,
		}
		out = append(out, driver)
	}
	return out, nil
}

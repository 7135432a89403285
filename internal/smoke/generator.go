package smoke

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/contacts/internal/domain/model"
)

var cities = []string{"London", "Lisbon", "Nairobi", "Osaka", "Portland", "Quito", "Tallinn"}

var streets = []string{"High St", "Main St", "Harbour Rd", "Mill Ln", "Station Rd"}

// Generate builds n distinct contacts tagged with runID so concurrent runs
// against one server can tell their data apart. A nil rng uses a fresh
// time-seeded source.
func Generate(runID string, n int, rng *rand.Rand) []model.Contact {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	out := make([]model.Contact, n)
	for i := range out {
		out[i] = model.Contact{
			Name:    fmt.Sprintf("smoke-%s-%d", runID, i),
			Email:   fmt.Sprintf("smoke.%s.%d@example.com", runID, i),
			Phone:   fmt.Sprintf("+1-555-%04d", rng.IntN(10000)),
			Address: fmt.Sprintf("%d %s", 1+rng.IntN(999), streets[rng.IntN(len(streets))]),
			City:    cities[rng.IntN(len(cities))],
		}
	}
	return out
}

// mutate returns c with a changed city and phone, keeping the id.
func mutate(c model.Contact, rng *rand.Rand) model.Contact {
	next := cities[rng.IntN(len(cities))]
	for next == c.City {
		next = cities[rng.IntN(len(cities))]
	}
	c.City = next
	c.Phone = fmt.Sprintf("+1-555-%04d", rng.IntN(10000))
	return c
}

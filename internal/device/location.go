package device

import (
	"context"
	"errors"
	"math"

	"github.com/npezzotti/gochat-client/internal/types"
)

var ErrLocationUnavailable = errors.New("location unavailable")

// Locator yields the device's current position.
type Locator interface {
	Locate(ctx context.Context) (types.Location, error)
}

// StaticLocator reports a fixed position, typically from flags.
type StaticLocator struct {
	Location *types.Location
}

func NewStaticLocator(lat, lng float64, set bool) *StaticLocator {
	if !set {
		return &StaticLocator{}
	}
	return &StaticLocator{Location: &types.Location{Lat: lat, Lng: lng}}
}

func (l *StaticLocator) Locate(ctx context.Context) (types.Location, error) {
	if err := ctx.Err(); err != nil {
		return types.Location{}, err
	}
	if l.Location == nil || !valid(*l.Location) {
		return types.Location{}, ErrLocationUnavailable
	}
	return *l.Location, nil
}

func valid(loc types.Location) bool {
	if math.IsNaN(loc.Lat) || math.IsNaN(loc.Lng) {
		return false
	}
	return math.Abs(loc.Lat) <= 90 && math.Abs(loc.Lng) <= 180
}

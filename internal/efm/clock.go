package efm

import (
	"time"

	"github.com/google/uuid"
)

// Clock stamps created_at, finished_at and snapshot names.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator names temporary files in the collection and cloud staging areas.
type IDGenerator interface {
	New() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }

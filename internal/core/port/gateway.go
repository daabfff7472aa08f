package port

import (
	"context"

	"smartsched/internal/core/domain"
)

// InverterGateway is the adapter-owned boundary toward the physical fleet.
// The scheduler addresses commands by logical action name and window index;
// the gateway's register table resolves the actual addressing.
type InverterGateway interface {
	Open() error
	Close() error
	GetDevicesInfo() (*domain.DevicesInfo, error)
	GetSnapshot() (*domain.TelemetrySnapshot, error)
	SendCommand(ctx context.Context, cmd domain.DeviceCommand) error
}

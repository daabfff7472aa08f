package domain

import "fmt"

// SchedulerControlRequest

type SchedulerControlRequest interface {
	ActorRequest
	SchedulerControlCommand() string
}

type SchedulerControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r SchedulerControlRequestMixIn) SchedulerControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// SchedulerControlResponse

type SchedulerControlResponse interface {
	ActorResponse
	SchedulerControlResponse() string
}

type SchedulerControlResponseMixIn struct {
	ActorResponse
}

func (r SchedulerControlResponseMixIn) SchedulerControlResponse() string {
	return fmt.Sprintf("%T", r)
}

// Scheduler commands

type SchedulerEnableRequest struct {
	SchedulerControlRequestMixIn
	Enable bool
}

type SchedulerEnableResponse struct {
	SchedulerControlResponseMixIn
	Changed bool
}

type SchedulerSetPolicyRequest struct {
	SchedulerControlRequestMixIn
	Policy PolicyUpdate
}

type SchedulerSetPolicyResponse struct {
	SchedulerControlResponseMixIn
}

type SchedulerSetMinSOCRequest struct {
	SchedulerControlRequestMixIn
	MinSOC uint
}

type SchedulerSetMinSOCResponse struct {
	SchedulerControlResponseMixIn
	MinSOC uint
}

// PolicyUpdate carries a validated policy reconfiguration. Validation
// happens before the request is sent, never inside a cycle.
type PolicyUpdate struct {
	Enabled                bool
	PrimaryMode            OperatingMode
	TargetFullBeforeSunset bool
	OvernightMinSOC        float64
	BlackoutReserveSOC     float64
	MaxChargePowerWatt     float64
	MaxDischargePowerWatt  float64
}

// ensure interface compliance
var _ SchedulerControlRequest = (*SchedulerEnableRequest)(nil)

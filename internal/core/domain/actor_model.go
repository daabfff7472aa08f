package domain

const (
	ACTOR_ID_MASTER    = "master"
	ACTOR_ID_MODBUS    = "modbus"
	ACTOR_ID_MONITOR   = "monitor"
	ACTOR_ID_MQTT      = "mqtt"
	ACTOR_ID_FORECAST  = "forecast"
	ACTOR_ID_SCHEDULER = "scheduler"
)

type GetDevicesInfoRequest struct {
	ActorRequestMixIn
}

type GetDevicesInfoResponse struct {
	ActorResponseMixIn
	Devices *DevicesInfo
}

type GetTelemetrySnapshotRequest struct {
	ActorRequestMixIn
}

type GetTelemetrySnapshotResponse struct {
	ActorResponseMixIn
	Snapshot *TelemetrySnapshot
}

type GetForecastRequest struct {
	ActorRequestMixIn
}

type GetForecastResponse struct {
	ActorResponseMixIn
	Forecast *Forecast
}

type DispatchCommandBatchRequest struct {
	ActorRequestMixIn
	Batch CommandBatch
}

type DispatchCommandBatchResponse struct {
	ActorResponseMixIn
	Results []CommandResult
}

type GetPlanRequest struct {
	ActorRequestMixIn
}

type GetPlanResponse struct {
	ActorResponseMixIn
	Plan *SchedulerPlan
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

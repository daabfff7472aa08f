package server

import (
	"net/http"
	"time"

	"smartsched/internal/config"
	"smartsched/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)
	e.GET("/api/plan", s.GetPlanHandler)
	e.PUT("/api/policy", s.SetPolicyHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version":  versioninfo.Version,
		"revision": versioninfo.Revision,
	})
}

func (s *Server) GetPlanHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetPlanRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	response, ok := res.(domain.GetPlanResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorBody(nil))
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusNotFound, errorBody(response.GetResponseError()))
	}
	return c.JSON(http.StatusOK, response.Plan)
}

// policyBody is the wire form of a policy reconfiguration.
type policyBody struct {
	Enabled                bool    `json:"enabled"`
	PrimaryMode            string  `json:"primary_mode"`
	TargetFullBeforeSunset bool    `json:"target_full_before_sunset"`
	OvernightMinSOC        float64 `json:"overnight_min_soc"`
	BlackoutReserveSOC     float64 `json:"blackout_reserve_soc"`
	MaxChargePowerWatt     float64 `json:"max_charge_power_watt"`
	MaxDischargePowerWatt  float64 `json:"max_discharge_power_watt"`
}

// SetPolicyHandler validates the whole policy before anything reaches the
// scheduler: a half-applied policy must be impossible.
func (s *Server) SetPolicyHandler(c echo.Context) error {
	var body policyBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	check := config.PolicyConfig{
		Enabled:                body.Enabled,
		PrimaryMode:            body.PrimaryMode,
		TargetFullBeforeSunset: body.TargetFullBeforeSunset,
		OvernightMinSOC:        body.OvernightMinSOC,
		BlackoutReserveSOC:     body.BlackoutReserveSOC,
		MaxChargePowerWatt:     body.MaxChargePowerWatt,
		MaxDischargePowerWatt:  body.MaxDischargePowerWatt,
	}
	if err := check.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	req := domain.SchedulerSetPolicyRequest{
		Policy: domain.PolicyUpdate{
			Enabled:                body.Enabled,
			PrimaryMode:            domain.OperatingMode(body.PrimaryMode),
			TargetFullBeforeSunset: body.TargetFullBeforeSunset,
			OvernightMinSOC:        body.OvernightMinSOC,
			BlackoutReserveSOC:     body.BlackoutReserveSOC,
			MaxChargePowerWatt:     body.MaxChargePowerWatt,
			MaxDischargePowerWatt:  body.MaxDischargePowerWatt,
		},
	}
	_, err := s.rootContext.RequestFuture(s.masterActor, req, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorBody(err))
	}
	return c.NoContent(http.StatusNoContent)
}

func errorBody(err error) map[string]string {
	msg := "unexpected response"
	if err != nil {
		msg = err.Error()
	}
	return map[string]string{"error": msg}
}

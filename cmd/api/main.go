package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "smartsched/internal/adapter/actor"
	"smartsched/internal/adapter/forecast"
	"smartsched/internal/adapter/inverter"
	"smartsched/internal/config"
	"smartsched/internal/core/actor"
	"smartsched/internal/core/port"
	"smartsched/internal/server"
	"smartsched/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	primary, fallback := forecastSources(cfg)

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, modbusProv, mqttActorProvider(cfg, logger), primary, fallback, logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SMARTSCHED_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SMARTSCHED_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("smartsched")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check bounds
	if err := cfg.Location.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Scheduler.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Forecast.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.InverterModbusTcp.Validate(); err != nil {
		return nil, err
	}
	if cfg.Monitor.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	gateway, err := inverter.NewModbusGateway(cfg.InverterModbusTcp, 1*time.Second, logger)
	if err != nil {
		return nil, err
	}

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(gateway, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

// forecastSources picks the configured provider, always backed by the naive
// model so a dead weather API never stalls planning.
func forecastSources(cfg *config.Config) (primary, fallback port.ForecastSource) {
	naive := forecast.NewNaiveSource(cfg.Location, cfg.Forecast)
	switch cfg.Forecast.Provider {
	case "open-meteo":
		return forecast.NewOpenMeteoSource(cfg.Location, cfg.Forecast), naive
	default:
		return naive, nil
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("mqtt.base_topic", "smartsched")
	viper.SetDefault("monitor.poll_interval_millis", 5000)
	viper.SetDefault("forecast.provider", "naive")
	viper.SetDefault("forecast.refresh_interval_millis", 1800000)
	viper.SetDefault("forecast.horizon_hours", 24)
	viper.SetDefault("forecast.min_confidence", 0.35)
	viper.SetDefault("scheduler.cycle_interval_millis", 300000)
	viper.SetDefault("scheduler.command_timeout_millis", 2000)
	viper.SetDefault("scheduler.max_snapshot_age_millis", 60000)
	viper.SetDefault("scheduler.surplus_threshold_watt", 250)
	viper.SetDefault("policy.primary_mode", "tou")
	viper.SetDefault("policy.enabled", true)
	viper.SetDefault("policy.overnight_min_soc", 30)
	viper.SetDefault("policy.blackout_reserve_soc", 15)
	viper.SetDefault("policy.max_charge_power_watt", 5000)
	viper.SetDefault("policy.max_discharge_power_watt", 5000)
	viper.SetDefault("port", 8080)
}

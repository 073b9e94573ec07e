package main

import (
	"bookswap/internal/engine"
	"bookswap/internal/health"
	"bookswap/pkg/app"
	"bookswap/pkg/config"
	"bookswap/pkg/contracts"
	kafka_config "bookswap/pkg/kafka/config"
	"bookswap/pkg/metrics"
)

const ServiceName = "swaps"

func main() {
	cfg := config.Load(ServiceName)

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	cfg.Log.Info("Starting Swaps service")
	cfg.Connect()

	var m *metrics.SwapMetrics
	if cfg.MetricsEnabled {
		m = metrics.Swap()
	}

	eng, err := engine.New(cfg, m)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize swap engine", "error", err)
	}

	serverApp := app.NewApplication(cfg, m)
	serverApp.SetApp(health.NewHandler(cfg.StoreDriver, cfg.Client, cfg.Log), eng.Handlers()...)
	initWorkers(cfg, kafkaCfg, eng, m, serverApp)
	serverApp.Run()
}

// initWorkers runs the sweeper, the outbox relay and the booking events
// consumer in process. Deployments running cmd/sweeper and cmd/relay turn
// the first two off.
func initWorkers(cfg *config.Config, kafkaCfg *kafka_config.Config, eng *engine.Engine, m *metrics.SwapMetrics, a *app.Application) {
	if cfg.SweeperEnabled {
		a.AddWorker("sweeper", eng.Sweeper)
	}

	if cfg.RelayEnabled {
		delivery, err := engine.NewDelivery(cfg, kafkaCfg, m)
		if err != nil {
			cfg.Log.Fatal("Failed to initialize event delivery", "error", err)
		}
		a.AddWorker("outbox-relay", eng.NewRelay(delivery.Recorder, delivery.Notifier))
		a.OnShutdown("kafka-producers", delivery.Close)
	}

	consumer, err := eng.NewBookingEventsConsumer(kafkaCfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize booking events consumer", "error", err)
	}
	if consumer != nil {
		a.AddWorker("booking-events", contracts.WorkerFunc(engine.ConsumerWorker(consumer, cfg)))
		a.OnShutdown("booking-events-consumer", consumer.Close)
	}
}

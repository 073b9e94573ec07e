package main

import (
	"bookswap/internal/engine"
	"bookswap/internal/health"
	"bookswap/pkg/app"
	"bookswap/pkg/config"
	kafka_config "bookswap/pkg/kafka/config"
	"bookswap/pkg/metrics"
)

const ServiceName = "relay"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.StoreDriver == config.StoreMemory {
		cfg.Log.Fatal("The standalone relay needs a shared store, STORE_DRIVER=memory is not supported")
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	cfg.Log.Info("Starting outbox relay")
	cfg.Connect()

	var m *metrics.SwapMetrics
	if cfg.MetricsEnabled {
		m = metrics.Swap()
	}

	eng, err := engine.New(cfg, m)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize swap engine", "error", err)
	}
	delivery, err := engine.NewDelivery(cfg, kafkaCfg, m)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize event delivery", "error", err)
	}

	serverApp := app.NewApplication(cfg, m)
	serverApp.SetApp(health.NewHandler(cfg.StoreDriver, cfg.Client, cfg.Log))
	serverApp.AddWorker("outbox-relay", eng.NewRelay(delivery.Recorder, delivery.Notifier))
	serverApp.OnShutdown("kafka-producers", delivery.Close)
	serverApp.Run()
}

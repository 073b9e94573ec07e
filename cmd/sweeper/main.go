package main

import (
	"bookswap/internal/engine"
	"bookswap/internal/health"
	"bookswap/pkg/app"
	"bookswap/pkg/config"
	"bookswap/pkg/metrics"
)

const ServiceName = "sweeper"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.StoreDriver == config.StoreMemory {
		cfg.Log.Fatal("The standalone sweeper needs a shared store, STORE_DRIVER=memory is not supported")
	}

	cfg.Log.Info("Starting expiry sweeper")
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
	serverApp.SetApp(health.NewHandler(cfg.StoreDriver, cfg.Client, cfg.Log))
	serverApp.AddWorker("sweeper", eng.Sweeper)
	serverApp.Run()
}

// Command tracksim drives the delivery pipeline with synthetic screen
// views. It needs no database: settings come from environment variables
// and consent is opted in at start. Point it at a real ingestion
// endpoint, or at the ingest-receiver tool, and watch batches arrive.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/datacloud"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/logging"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/tracking"
)

// screens is weighted towards the browsing surfaces a food-delivery
// session actually spends time on.
var screens = []string{
	"Home", "Home", "Home",
	"Search",
	"RestaurantList", "RestaurantList",
	"RestaurantDetail", "RestaurantDetail",
	"MenuItem",
	"Cart",
	"Checkout",
	"OrderTracking",
	"OrderHistory",
	"Profile",
}

func main() {
	log := logging.New("development", "debug")

	endpoint := os.Getenv("SIM_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:9099"
	}
	appID := os.Getenv("SIM_APP_ID")
	if appID == "" {
		appID = "tracksim-local"
	}
	interval := 500 * time.Millisecond
	if raw := os.Getenv("SIM_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		}
	}

	var client datacloud.Client
	var httpClient *datacloud.HTTPClient
	if os.Getenv("SIM_DRY_RUN") == "true" {
		client = datacloud.NewNoop()
		log.Info("tracksim: dry run, events are accepted and discarded")
	} else {
		httpClient = datacloud.NewHTTPClient(datacloud.NewHTTPSender(), log, datacloud.ClientConfig{
			QueueSize:      1000,
			BatchSize:      20,
			FlushInterval:  2 * time.Second,
			RequestTimeout: 10 * time.Second,
			DrainTimeout:   10 * time.Second,
		})
		client = httpClient
		log.Infof("tracksim: posting to %s", endpoint)
	}

	source := &staticSettings{cfg: domain.AnalyticsConfig{
		AppID:         appID,
		Endpoint:      endpoint,
		EnableLogging: true,
		UpdatedAt:     time.Now().UTC(),
	}}

	manager := tracking.NewManager(source, client, tracking.AppInfo{
		Name:        "tracksim",
		Version:     "dev",
		Environment: "development",
	}, log)
	manager.Configure(context.Background())

	// A simulated user who said yes to analytics.
	client.SetConsent(domain.ConsentOptIn)

	tracker := tracking.NewTracker(client, log).WithSink(tracking.NewLogSink(log))

	// Use separate contexts for the simulator and the client to enable
	// ordered shutdown: the simulator stops first, then the client
	// drains whatever is still queued.
	simCtx, cancelSim := context.WithCancel(context.Background())
	clientCtx, cancelClient := context.WithCancel(context.Background())

	var simWg sync.WaitGroup
	var clientWg sync.WaitGroup

	if httpClient != nil {
		clientWg.Add(1)
		go func() {
			defer clientWg.Done()
			httpClient.Run(clientCtx)
		}()
	}

	simWg.Add(1)
	go func() {
		defer simWg.Done()
		manager.TrackAppLaunch(simCtx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-simCtx.Done():
				return
			case <-ticker.C:
				tracker.TrackScreen(simCtx, screens[rand.Intn(len(screens))])
			}
		}
	}()

	log.Infof("tracksim: started (interval=%s)", interval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Infof("tracksim: received signal %v, shutting down", received)

	// Phase 1: Stop the simulator (no new events)
	log.Info("tracksim: stopping simulator...")
	cancelSim()
	simWg.Wait()
	log.Info("tracksim: simulator stopped")

	// Phase 2: Stop the client (drains queued events before returning)
	if httpClient != nil {
		log.Info("tracksim: stopping client (draining events)...")
		cancelClient()
		clientWg.Wait()
		log.Info("tracksim: client stopped")
	} else {
		cancelClient()
	}

	log.Info("tracksim: stopped")
}

// staticSettings feeds the manager a fixed credential snapshot, taking
// the place of the Postgres-backed store the real service uses.
type staticSettings struct {
	cfg domain.AnalyticsConfig
}

func (s *staticSettings) GetAnalyticsSettings(ctx context.Context) (domain.AnalyticsConfig, error) {
	return s.cfg, nil
}

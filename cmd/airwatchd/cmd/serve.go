package cmd

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreadnought-systems/airwatch/internal/api"
	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/bus"
	"github.com/dreadnought-systems/airwatch/internal/config"
	"github.com/dreadnought-systems/airwatch/internal/dedupe"
	"github.com/dreadnought-systems/airwatch/internal/ingest"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/predict"
	"github.com/dreadnought-systems/airwatch/internal/store"
	"github.com/dreadnought-systems/airwatch/internal/threat"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest pipeline and its HTTP/websocket surface",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	b := bus.New(cfg.BusBufferSize, cfg.BusGraceWindow)
	dd := dedupe.New()
	if err := reseedDeduper(dd, st); err != nil {
		return err
	}

	weights := threat.Weights{
		SpeedThresholdKnots: cfg.ThreatSpeedThresholdKnots,
		GraduatedSpeed:      cfg.ThreatGraduatedSpeed,
	}
	predictParams := predict.Params{HorizonSec: cfg.PredictorHorizonSec, StrideSec: cfg.PredictorStrideSec}

	pipeline, err := ingest.New(st, dd, b, weights, predictParams)
	if err != nil {
		return err
	}

	issuer := auth.NewIssuer(cfg.JWTSigningKey, cfg.TokenTTL)
	server := api.New(pipeline, st, b, issuer, cfg.IngestDeadline)

	go runRetentionSweep(st, cfg)
	go runIdleSweep(dd, st, b, cfg)
	go runSaturationSweep(b, cfg)

	log.Printf("airwatchd listening on %s", cfg.HTTPAddr)
	return http.ListenAndServe(cfg.HTTPAddr, server.Handler())
}

// reseedDeduper restores the Deduper's open-alert map from every
// unresolved alert in the store, so a restart does not forget which
// intrusions are already being tracked and re-alert on the next sample.
func reseedDeduper(dd *dedupe.Deduper, st *store.Store) error {
	unresolved, err := st.ListUnresolvedAlerts(context.Background())
	if err != nil {
		return err
	}
	for _, a := range unresolved {
		key := dedupe.Key{
			ExternalID: a.TransponderID,
			RegionID:   a.RegionID,
			Severity:   model.ThreatLevel(a.Severity),
		}
		dd.Seed(key, a.ID, a.LastSeenAt)
	}
	log.Printf("reseeded %d open alerts from store", len(unresolved))
	return nil
}

func runRetentionSweep(st *store.Store, cfg config.Config) {
	ticker := time.NewTicker(cfg.RetentionSweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := st.Sweep(ctx, cfg.FlightRetention, cfg.AlertRetention); err != nil {
			log.Printf("retention sweep failed: %v", err)
		}
		cancel()
	}
}

func runIdleSweep(dd *dedupe.Deduper, st *store.Store, b *bus.Bus, cfg config.Config) {
	ticker := time.NewTicker(cfg.DedupeIdleWindow / 2)
	defer ticker.Stop()
	for range ticker.C {
		closed := dd.SweepIdle(time.Now())
		for _, c := range closed {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := st.ResolveAlert(ctx, c.AlertID); err != nil {
				log.Printf("idle-sweep resolve alert %d failed: %v", c.AlertID, err)
			}
			cancel()
			b.Publish(model.PushEvent{Type: model.EventAlertResolved, Data: c.AlertID})
		}
	}
}

func runSaturationSweep(b *bus.Bus, cfg config.Config) {
	ticker := time.NewTicker(cfg.BusGraceWindow / 2)
	defer ticker.Stop()
	for range ticker.C {
		removed := b.SweepSaturated(time.Now())
		for _, id := range removed {
			log.Printf("disconnected saturated subscriber %s", id)
		}
	}
}

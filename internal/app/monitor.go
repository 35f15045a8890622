// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/vibration_monitor/internal/acquisition"
	"github.com/relabs-tech/vibration_monitor/internal/archive"
	"github.com/relabs-tech/vibration_monitor/internal/config"
	"github.com/relabs-tech/vibration_monitor/internal/sensors"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

// RunMonitor wires the acquisition pipeline and runs it until ctx is
// cancelled or any component fails. The acquisition loop is the only
// writer; everything else reads the store.
func RunMonitor(ctx context.Context) error {
	cfg := config.Get()

	dec, err := openSource(cfg)
	if err != nil {
		return fmt.Errorf("failed to open sample source: %w", err)
	}
	log.Printf("monitor: source %s ready (odr=%.0f Hz, watermark=%d)",
		cfg.Source, dec.ConfiguredRate(), dec.Watermark())

	st := store.New(cfg.StoreCapacity)
	col := acquisition.NewCollector(dec, st, nil)

	loop := acquisition.NewLoop(col,
		time.Duration(cfg.AcqPeriodUS)*time.Microsecond,
		time.Duration(cfg.AcqRetryBackoffMS)*time.Millisecond)

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMonitor)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("monitor: connected to MQTT broker at %s", cfg.MQTTBroker)
	defer client.Disconnect(250)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 8)

	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}

	start("acquisition", loop.Run)
	start("analytics", func(ctx context.Context) error {
		return RunAnalytics(ctx, st, col, time.Duration(cfg.AnalyticsIntervalMS)*time.Millisecond)
	})
	start("broadcaster", func(ctx context.Context) error {
		return RunBroadcaster(ctx, client, st, time.Duration(cfg.BroadcastIntervalMS)*time.Millisecond)
	})
	start("web", func(ctx context.Context) error {
		return RunWeb(ctx, st, col)
	})

	if cfg.ArchiveDBPath != "" {
		arc, err := archive.Open(cfg.ArchiveDBPath, st,
			time.Duration(cfg.ArchiveIntervalMS)*time.Millisecond, cfg.ArchiveBatchMax)
		if err != nil {
			cancel()
			wg.Wait()
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer arc.Close()
		start("archive", arc.Run)
	}

	if cfg.DisplayEnabled {
		start("display", func(ctx context.Context) error {
			return RunDisplay(ctx, st, col)
		})
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
	}

	snap := st.Snapshot()
	log.Printf("monitor: stopped (pushes=%d, overwrites=%d, last seq=%d)",
		snap.Pushes, snap.Overwrites, snap.LastSeq)
	return nil
}

func openSource(cfg *config.Config) (sensors.Decoder, error) {
	switch cfg.Source {
	case "iis3dwb":
		return sensors.NewIIS3DWBSource(cfg.AccelSPIDevice, cfg.AccelFullScaleG, cfg.AccelWatermark)
	case "serial":
		return sensors.NewSerialSource(cfg.SerialPort, cfg.SerialBaudRate, cfg.SerialRateHz, cfg.SerialWatermark)
	case "mock":
		return sensors.NewMockSource(cfg.MockRateHz, cfg.MockWatermark), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source)
	}
}

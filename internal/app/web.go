// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/relabs-tech/vibration_monitor/internal/acquisition"
	"github.com/relabs-tech/vibration_monitor/internal/config"
	"github.com/relabs-tech/vibration_monitor/internal/export"
	"github.com/relabs-tech/vibration_monitor/internal/sample"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// streamBurst is one websocket message: the samples newer than what the
// client has already received, oldest first.
type streamBurst struct {
	Samples []sample.Sample `json:"samples"`
	Lost    uint32          `json:"lost"` // dropped between bursts by buffer overwrite
}

// RunWeb serves the JSON API, the live websocket stream and the bulk
// export downloads. Every handler is a plain store reader; none of them
// can stall the acquisition loop.
func RunWeb(ctx context.Context, st *store.Store, col *acquisition.Collector) error {
	cfg := config.Get()

	exportMax := cfg.ExportMaxSamples
	if exportMax <= 0 || exportMax > st.Cap() {
		exportMax = st.Cap()
	}

	mux := http.NewServeMux()

	// Latest sample, or 503 before the first push.
	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		smp, ok := st.PeekLatest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(smp); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Recent window, oldest first. ?count= caps the window.
	mux.HandleFunc("/api/recent", func(w http.ResponseWriter, r *http.Request) {
		count := exportMax
		if q := r.URL.Query().Get("count"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 1 {
				http.Error(w, "invalid count", http.StatusBadRequest)
				return
			}
			if n < count {
				count = n
			}
		}
		samples, snap := st.CopyRecent(count)
		w.Header().Set("Content-Type", "application/json")
		if err := export.WriteJSON(w, samples, snap); err != nil {
			log.Printf("web: recent export error: %v", err)
		}
	})

	// Store and acquisition diagnostics.
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		sps, bps := col.Throughput()
		stats := struct {
			Store         store.Snapshot `json:"store"`
			SamplesPerSec float64        `json:"samples_per_second"`
			BatchesPerSec float64        `json:"batches_per_second"`
			ConfiguredODR float64        `json:"configured_odr_hz"`
			FifoWatermark int            `json:"fifo_watermark"`
		}{st.Snapshot(), sps, bps, col.ConfiguredRate(), col.Watermark()}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("web: stats encode error: %v", err)
		}
	})

	mux.HandleFunc("/export/csv", func(w http.ResponseWriter, r *http.Request) {
		samples, _ := st.CopyRecent(exportMax)
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="vibration_samples.csv"`)
		if err := export.WriteCSV(w, samples); err != nil {
			log.Printf("web: csv export error: %v", err)
		}
	})

	mux.HandleFunc("/export/json", func(w http.ResponseWriter, r *http.Request) {
		samples, snap := st.CopyRecent(exportMax)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="vibration_samples.json"`)
		if err := export.WriteJSON(w, samples, snap); err != nil {
			log.Printf("web: json export error: %v", err)
		}
	})

	mux.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()
		streamSamples(ctx, conn, st)
	})

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir("web")))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("web: shutdown error: %v", err)
		}
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("web: stopped")
	return nil
}

// streamSamples pushes bursts of new samples to one websocket client.
// The client's position is tracked by sequence id; falling behind the
// overwrite horizon is reported in the burst, not treated as a failure.
// Burst encoding uses sonnet: at high data rates this runs per client
// per tick and encoding/json shows up in profiles.
func streamSamples(ctx context.Context, conn *websocket.Conn, st *store.Store) {
	const burstInterval = 50 * time.Millisecond

	ticker := time.NewTicker(burstInterval)
	defer ticker.Stop()

	var (
		lastSent uint32
		haveSent bool
	)

	log.Printf("web: stream client connected (%s)", conn.RemoteAddr())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		window, snap := st.CopyRecent(st.Cap())
		if len(window) == 0 {
			continue
		}

		burst := streamBurst{Samples: window}
		if haveSent {
			i := 0
			for i < len(window) && !sample.SeqAfter(window[i].Seq, lastSent) {
				i++
			}
			burst.Samples = window[i:]
			if len(burst.Samples) > 0 {
				burst.Lost = sample.SeqGap(lastSent, burst.Samples[0].Seq)
			}
		}
		if len(burst.Samples) == 0 {
			continue
		}

		payload, err := sonnet.Marshal(burst)
		if err != nil {
			log.Printf("web: stream marshal error: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("web: stream client gone (%s): %v", conn.RemoteAddr(), err)
			return
		}
		lastSent = snap.LastSeq
		haveSent = true
	}
}

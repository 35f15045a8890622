package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/vibration_monitor/internal/config"
	"github.com/relabs-tech/vibration_monitor/internal/orientation"
	"github.com/relabs-tech/vibration_monitor/internal/store"
)

// statsMessage is the periodic store/throughput report published on the
// stats topic.
type statsMessage struct {
	Store store.Snapshot `json:"store"`
	Time  string         `json:"time"`
}

// RunBroadcaster publishes the latest sample to MQTT at its own network
// rate. Publishing a sample twice is avoided by checking the sequence
// id; a gap between published sequence ids just means faster acquisition
// than broadcast, which is expected, not an error.
func RunBroadcaster(ctx context.Context, client mqtt.Client, st *store.Store, interval time.Duration) error {
	cfg := config.Get()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		lastSeq uint32
		haveSeq bool
	)

	log.Printf("broadcast: publishing to %s every %s", cfg.TopicSample, interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("broadcast: stopped")
			return nil
		case <-ticker.C:
		}

		smp, ok := st.PeekLatest()
		if !ok || (haveSeq && smp.Seq == lastSeq) {
			continue
		}
		lastSeq = smp.Seq
		haveSeq = true

		payload, err := json.Marshal(smp)
		if err != nil {
			log.Printf("broadcast: sample marshal error: %v", err)
			continue
		}
		if token := client.Publish(cfg.TopicSample, 0, true, payload); token.Wait() && token.Error() != nil {
			log.Printf("broadcast: MQTT publish error (sample): %v", token.Error())
			continue
		}

		if cfg.TopicTilt != "" && smp.Valid {
			tilt := orientation.FromAccel(smp.XG, smp.YG, smp.ZG)
			if payload, err := json.Marshal(tilt); err != nil {
				log.Printf("broadcast: tilt marshal error: %v", err)
			} else {
				client.Publish(cfg.TopicTilt, 0, true, payload)
			}
		}

		if cfg.TopicStats != "" {
			msg := statsMessage{Store: st.Snapshot(), Time: time.Now().Format(time.RFC3339)}
			if payload, err := json.Marshal(msg); err != nil {
				log.Printf("broadcast: stats marshal error: %v", err)
			} else {
				client.Publish(cfg.TopicStats, 0, true, payload)
			}
		}
	}
}

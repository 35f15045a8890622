package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/vibration_monitor/internal/config"
	"github.com/relabs-tech/vibration_monitor/internal/orientation"
	"github.com/relabs-tech/vibration_monitor/internal/sample"
)

func RunConsole() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to samples
	sampleToken := client.Subscribe(cfg.TopicSample, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s sample.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[ACC ]  seq=%-10d t=%dus  x=%8.4f y=%8.4f z=%8.4f  |g|=%8.4f  %6.0f sps\n",
			s.Seq, s.TimestampUS, s.XG, s.YG, s.ZG, s.MagnitudeG, s.Stats.SamplesPerSec,
		)
	})
	sampleToken.Wait()
	if sampleToken.Error() != nil {
		return sampleToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicSample)

	// Subscribe to tilt
	tiltToken := client.Subscribe(cfg.TopicTilt, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var t orientation.Tilt
		if err := json.Unmarshal(msg.Payload(), &t); err != nil {
			log.Printf("console: tilt unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[TILT]  ROLL=%6.2f  PITCH=%6.2f\n",
			t.Roll, t.Pitch,
		)
	})
	tiltToken.Wait()
	if tiltToken.Error() != nil {
		return tiltToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTilt)

	// Subscribe to store stats
	statsToken := client.Subscribe(cfg.TopicStats, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var m statsMessage
		if err := json.Unmarshal(msg.Payload(), &m); err != nil {
			log.Printf("console: stats unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[STAT]  seq=%-10d held=%d pushes=%d overwrites=%d  %s\n",
			m.Store.LastSeq, m.Store.Count, m.Store.Pushes, m.Store.Overwrites, m.Time,
		)
	})
	statsToken.Wait()
	if statsToken.Error() != nil {
		return statsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicStats)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

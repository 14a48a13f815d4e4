// internal/hub/relay.go
// Optional NATS relay. When a NATS URL is configured, comment and presence
// events are mirrored onto subjects so other services (audit, search
// indexing, additional board instances) can consume them. The board runs
// fine without it.
package hub

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/commentboard/server/internal/logger"
)

const (
	relayStreamName       = "COMMENTBOARD"
	relayRetention        = 30 * time.Minute
	subjectPrefixComments = "comments."
	subjectPrefixPresence = "presence."
)

// Relay publishes hub events to NATS. A nil *Relay is valid and publishes
// nothing, so callers never need to branch on whether NATS is configured.
type Relay struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logger.Logger
}

// ConnectRelay dials NATS and ensures the JetStream stream for comment
// events exists. Any failure is logged and degrades to a nil relay rather
// than preventing startup.
func ConnectRelay(url string, log *logger.Logger) *Relay {
	if url == "" {
		return nil
	}

	log.Infof("connecting to NATS at %s", url)
	nc, err := nats.Connect(url)
	if err != nil {
		log.Errorf("NATS connect failed: %v", err)
		log.Warn("running without the event relay")
		return nil
	}

	js, err := nc.JetStream()
	if err != nil {
		log.Errorf("JetStream context failed: %v", err)
		log.Warn("relaying events without persistence")
		return &Relay{nc: nc, log: log}
	}

	cfg := &nats.StreamConfig{
		Name:     relayStreamName,
		Subjects: []string{subjectPrefixComments + "*", subjectPrefixPresence + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   relayRetention,
	}
	if _, err := js.StreamInfo(cfg.Name); err != nil {
		if _, err := js.AddStream(cfg); err != nil {
			log.Errorf("creating stream %s failed: %v", cfg.Name, err)
		} else {
			log.Infof("created stream %s", cfg.Name)
		}
	} else {
		if _, err := js.UpdateStream(cfg); err != nil {
			log.Errorf("updating stream %s failed: %v", cfg.Name, err)
		}
	}

	return &Relay{nc: nc, js: js, log: log}
}

// Close drains the underlying connection.
func (r *Relay) Close() {
	if r == nil || r.nc == nil {
		return
	}
	r.nc.Close()
}

func (r *Relay) publishComment(kind string, payload any) {
	r.publish(subjectPrefixComments+kind, payload)
}

func (r *Relay) publishPresence(kind string, payload any) {
	r.publish(subjectPrefixPresence+kind, payload)
}

func (r *Relay) publish(subject string, payload any) {
	if r == nil || r.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Errorf("marshal for %s failed: %v", subject, err)
		return
	}
	if r.js != nil {
		if _, err := r.js.Publish(subject, data); err != nil {
			r.log.Errorf("publish to %s failed: %v", subject, err)
		}
		return
	}
	if err := r.nc.Publish(subject, data); err != nil {
		r.log.Errorf("publish to %s failed: %v", subject, err)
	}
}

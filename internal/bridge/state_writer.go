// internal/bridge/state_writer.go
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tamzrod/freshair-modbus/internal/device"
	"github.com/tamzrod/freshair-modbus/internal/status"
)

// Publisher is the delivery contract the writer needs from an MQTT client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateWriter delivers device state to retained topics.
// The first write and the write after any failure re-assert every topic;
// otherwise only topics whose payload changed are published.
type StateWriter struct {
	mu     sync.Mutex
	pub    Publisher
	topics Topics
	qos    byte
	retain bool

	needFull bool
	last     map[string]string
}

func NewStateWriter(pub Publisher, topics Topics, qos byte, retain bool) *StateWriter {
	return &StateWriter{
		pub:      pub,
		topics:   topics,
		qos:      qos,
		retain:   retain,
		needFull: true,
		last:     make(map[string]string),
	}
}

// Invalidate forces a full re-assert on the next write (after a reconnect).
func (w *StateWriter) Invalidate() {
	w.mu.Lock()
	w.needFull = true
	w.mu.Unlock()
}

// WriteState publishes s. Unknown values are not published.
func (w *StateWriter) WriteState(s device.State) error {
	payloads, err := w.render(s)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// ------------------------------------------------------------
	// Full re-assert
	// ------------------------------------------------------------
	if w.needFull {
		for _, topic := range sortedTopics(payloads) {
			if err := w.pub.Publish(topic, []byte(payloads[topic]), w.qos, w.retain); err != nil {
				return fmt.Errorf("state writer: full assert failed on %s: %w", topic, err)
			}
		}
		w.needFull = false
		w.last = payloads
		return nil
	}

	// ------------------------------------------------------------
	// Changed topics only
	// ------------------------------------------------------------
	var errs []string
	for _, topic := range sortedTopics(payloads) {
		p := payloads[topic]
		if prev, ok := w.last[topic]; ok && prev == p {
			continue
		}
		if err := w.pub.Publish(topic, []byte(p), w.qos, w.retain); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", topic, err))
			continue
		}
		w.last[topic] = p
	}

	if len(errs) > 0 {
		w.needFull = true
		return errors.New("state writer: " + strings.Join(errs, " | "))
	}
	return nil
}

// WriteHealth publishes a status snapshot as JSON.
func (w *StateWriter) WriteHealth(s status.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := w.pub.Publish(w.topics.Health(), b, w.qos, w.retain); err != nil {
		return fmt.Errorf("state writer: health: %w", err)
	}
	return nil
}

// WriteAvailability always publishes retained so late subscribers see it.
func (w *StateWriter) WriteAvailability(online bool) error {
	payload := availabilityOffline
	if online {
		payload = availabilityOnline
	}
	if err := w.pub.Publish(w.topics.Availability(), []byte(payload), w.qos, true); err != nil {
		return fmt.Errorf("state writer: availability: %w", err)
	}
	return nil
}

// ---- rendering ----

func (w *StateWriter) render(s device.State) (map[string]string, error) {
	out := make(map[string]string, len(device.Properties)+2)

	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("state writer: encode state: %w", err)
	}
	out[w.topics.State()] = string(b)

	for _, p := range device.Properties {
		v, ok := s.Value(p)
		if !ok {
			continue
		}
		out[w.topics.Property(p)] = formatValue(v)
	}

	if pct, ok := fanPercentageOf(s); ok {
		out[w.topics.FanPercentage()] = strconv.Itoa(pct)
	}
	return out, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "ON"
		}
		return "OFF"
	case float64:
		return strconv.FormatFloat(x, 'f', 1, 64)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// fanPercentageOf derives the fan percentage: 0 when off, else the supply speed.
func fanPercentageOf(s device.State) (int, bool) {
	if s.Power == nil {
		return 0, false
	}
	if !*s.Power {
		return 0, true
	}
	if s.SupplySpeed == nil || !s.SupplySpeed.Valid() {
		return 0, false
	}
	return s.SupplySpeed.Percentage(), true
}

func sortedTopics(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

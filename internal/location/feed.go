package location

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"backend-triptracker/internal/shared/geo"
	"backend-triptracker/internal/tracking"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos         = 1
	waitTimeout = 5 * time.Second
)

// Sink receives decoded fixes and delivery errors.
type Sink interface {
	OnFixReceived(fix tracking.Fix) error
	ReportError(err error)
}

// mqttClient is the subset of mqtt.Client the feed needs.
type mqttClient interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
}

// MQTTFeed streams fixes for one device from the broker. The device is
// told when to start and stop reporting through its control topic and
// announces its location service state on the status topic.
type MQTTFeed struct {
	client   mqttClient
	deviceID string
	now      func() time.Time

	mu     sync.Mutex
	sink   Sink
	active bool

	serviceEnabled atomic.Bool
}

type locationMessage struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	Speed     *float64 `json:"speed"`
	Timestamp int64    `json:"timestamp"`
	Error     string   `json:"error"`
}

type controlMessage struct {
	Action string `json:"action"`
	tracking.SubscribeOptions
}

type statusMessage struct {
	Enabled bool `json:"enabled"`
}

func NewMQTTFeed(client mqttClient, deviceID string) *MQTTFeed {
	f := &MQTTFeed{
		client:   client,
		deviceID: deviceID,
		now:      time.Now,
	}
	f.serviceEnabled.Store(true)
	return f
}

// Bind sets where decoded fixes go. It must be called before Subscribe.
func (f *MQTTFeed) Bind(sink Sink) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
}

// WatchStatus follows the device's retained location service status.
func (f *MQTTFeed) WatchStatus() error {
	if f.client == nil {
		return errNoClient
	}
	return wait(f.client.Subscribe(statusTopic(f.deviceID), qos, f.handleStatus))
}

func (f *MQTTFeed) Subscribe(opts tracking.SubscribeOptions) error {
	if f.client == nil {
		return errNoClient
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sink == nil {
		return errNoSink
	}
	if f.active {
		return nil
	}

	if err := wait(f.client.Subscribe(locationTopic(f.deviceID), qos, f.handleMessage)); err != nil {
		return fmt.Errorf("subscribe %s: %w", locationTopic(f.deviceID), err)
	}
	if err := f.publishControl(controlMessage{Action: "start", SubscribeOptions: opts}); err != nil {
		return err
	}
	f.active = true
	return nil
}

func (f *MQTTFeed) Unsubscribe() error {
	if f.client == nil {
		return errNoClient
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active {
		return nil
	}
	f.active = false

	err := f.publishControl(controlMessage{Action: "stop"})
	if uerr := wait(f.client.Unsubscribe(locationTopic(f.deviceID))); uerr != nil {
		err = errors.Join(err, fmt.Errorf("unsubscribe %s: %w", locationTopic(f.deviceID), uerr))
	}
	return err
}

// IsLocationServiceEnabled is true when the broker connection is up and the
// device has not reported its location service as off.
func (f *MQTTFeed) IsLocationServiceEnabled() bool {
	if f.client == nil || !f.client.IsConnectionOpen() {
		return false
	}
	return f.serviceEnabled.Load()
}

func (f *MQTTFeed) publishControl(msg controlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal control: %w", err)
	}
	if err := wait(f.client.Publish(controlTopic(f.deviceID), qos, false, body)); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Action, err)
	}
	return nil
}

func (f *MQTTFeed) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	if sink == nil {
		return
	}

	var raw locationMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		log.Printf("invalid location message: %v", err)
		return
	}
	if raw.Error != "" {
		sink.ReportError(fmt.Errorf("location delivery: %s", raw.Error))
		return
	}

	fix, err := raw.toRawFix().ToFix(f.now())
	if err != nil {
		log.Printf("validation error: %v", err)
		return
	}
	if err := sink.OnFixReceived(fix); err != nil {
		log.Printf("fix rejected: %v", err)
	}
}

func (f *MQTTFeed) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	var status statusMessage
	if err := json.Unmarshal(msg.Payload(), &status); err != nil {
		log.Printf("invalid status message: %v", err)
		return
	}
	f.serviceEnabled.Store(status.Enabled)
}

func (m locationMessage) toRawFix() tracking.RawFix {
	raw := tracking.RawFix{
		AccuracyM: m.Accuracy,
		SpeedMps:  m.Speed,
	}
	if m.Latitude != nil && m.Longitude != nil {
		raw.Coords = &geo.Coordinate{Lat: *m.Latitude, Lng: *m.Longitude}
	}
	if m.Timestamp > 0 {
		raw.Timestamp = time.UnixMilli(m.Timestamp).UTC()
	}
	return raw
}

// StaticStatus reports a fixed location service state, used when fixes are
// pushed over HTTP instead of the broker.
type StaticStatus bool

func (s StaticStatus) IsLocationServiceEnabled() bool { return bool(s) }

func wait(token mqtt.Token) error {
	if !token.WaitTimeout(waitTimeout) {
		return errTimeout
	}
	return token.Error()
}

func locationTopic(deviceID string) string {
	return "/trip/device/" + deviceID + "/location"
}

func controlTopic(deviceID string) string {
	return "/trip/device/" + deviceID + "/control"
}

func statusTopic(deviceID string) string {
	return "/trip/device/" + deviceID + "/status"
}

var (
	errNoClient = errors.New("mqtt client not configured")
	errNoSink   = errors.New("location feed not bound")
	errTimeout  = errors.New("mqtt operation timed out")
)

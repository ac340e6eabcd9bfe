package main

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxQueuedMessages bounds the queue kept while the broker is unreachable
const maxQueuedMessages = 1000

// MQTTMessage represents an outgoing MQTT message
type MQTTMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// MQTTSender wraps a channel for sending MQTT messages with helper methods
type MQTTSender struct {
	ch     chan<- MQTTMessage
	prefix string
}

// NewMQTTSender creates a new MQTTSender wrapping the given channel
func NewMQTTSender(ch chan<- MQTTMessage, prefix string) *MQTTSender {
	return &MQTTSender{ch: ch, prefix: prefix}
}

// Send sends a raw MQTTMessage
func (s *MQTTSender) Send(msg MQTTMessage) {
	s.ch <- msg
}

// SendJSON marshals v and publishes it to topic
func (s *MQTTSender) SendJSON(topic string, v any, retain bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{Topic: topic, Payload: payload, QoS: 0, Retain: retain})
	return nil
}

type haDeviceConfig struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

type haEntityConfig struct {
	Name              string         `json:"name,omitempty"`
	DeviceClass       string         `json:"device_class,omitempty"`
	StateTopic        string         `json:"state_topic"`
	CommandTopic      string         `json:"command_topic,omitempty"`
	AvailabilityTopic string         `json:"availability_topic,omitempty"`
	UnitOfMeasure     string         `json:"unit_of_measurement,omitempty"`
	ValueTemplate     string         `json:"value_template,omitempty"`
	PayloadOn         string         `json:"payload_on,omitempty"`
	PayloadOff        string         `json:"payload_off,omitempty"`
	UniqueId          string         `json:"unique_id"`
	Icon              string         `json:"icon,omitempty"`
	StateClass        string         `json:"state_class,omitempty"`
	DisplayPrecision  int            `json:"suggested_display_precision,omitempty"`
	Min               *float64       `json:"min,omitempty"`
	Max               *float64       `json:"max,omitempty"`
	Mode              string         `json:"mode,omitempty"`
	Device            haDeviceConfig `json:"device"`
}

func (s *MQTTSender) device(name string) haDeviceConfig {
	return haDeviceConfig{
		Identifiers:  []string{s.prefix + "_" + name},
		Name:         name,
		Manufacturer: "axisctl",
		Model:        "Simulated axis",
	}
}

func (s *MQTTSender) publishDiscovery(component, objectID string, config haEntityConfig) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return err
	}
	s.Send(MQTTMessage{
		Topic:   "homeassistant/" + component + "/" + objectID + "/config",
		Payload: payload,
		QoS:     2,
		Retain:  true,
	})
	return nil
}

// CreateAxisEntities creates the Home Assistant entities of one axis via MQTT discovery:
// position and speed sensors, an at target binary sensor and a drive to number.
func (s *MQTTSender) CreateAxisEntities(axisName string, lower, upper float64) error {
	deviceId := s.prefix + "_" + strings.ReplaceAll(strings.ToLower(axisName), " ", "_")
	stateTopic := s.prefix + "/" + axisName + "/state"
	device := s.device(axisName)
	availability := s.prefix + "/availability"

	sensors := []struct{ name, key string }{
		{"Position", "position"},
		{"Speed", "speed"},
		{"Destination", "destination"},
	}
	for _, sensor := range sensors {
		err := s.publishDiscovery("sensor", deviceId+"_"+sensor.key, haEntityConfig{
			Name:              sensor.name,
			StateTopic:        stateTopic,
			AvailabilityTopic: availability,
			ValueTemplate:     "{{ value_json." + sensor.key + " }}",
			UniqueId:          deviceId + "_" + sensor.key,
			StateClass:        "measurement",
			DisplayPrecision:  2,
			Device:            device,
		})
		if err != nil {
			return err
		}
	}

	err := s.publishDiscovery("binary_sensor", deviceId+"_at_target", haEntityConfig{
		Name:              "At target",
		StateTopic:        stateTopic,
		AvailabilityTopic: availability,
		ValueTemplate:     "{{ 'ON' if value_json.at_target else 'OFF' }}",
		UniqueId:          deviceId + "_at_target",
		Icon:              "mdi:target",
		Device:            device,
	})
	if err != nil {
		return err
	}

	config := haEntityConfig{
		Name:              "Drive to",
		StateTopic:        stateTopic,
		CommandTopic:      s.prefix + "/" + axisName + "/set/drive_to",
		AvailabilityTopic: availability,
		ValueTemplate:     "{{ value_json.destination }}",
		UniqueId:          deviceId + "_drive_to",
		Mode:              "box",
		Device:            device,
	}
	if lower < upper {
		config.Min, config.Max = &lower, &upper
	}
	return s.publishDiscovery("number", deviceId+"_drive_to", config)
}

// CreatePublishSwitch creates the switch gating state publishing via MQTT discovery
func (s *MQTTSender) CreatePublishSwitch() error {
	return s.publishDiscovery("switch", s.prefix+"_publish", haEntityConfig{
		Name:         "Publish state",
		StateTopic:   s.prefix + "/plant/publish",
		CommandTopic: s.prefix + "/plant/set/publish",
		PayloadOn:    "ON",
		PayloadOff:   "OFF",
		UniqueId:     s.prefix + "_publish",
		Icon:         "mdi:broadcast",
		Device: haDeviceConfig{
			Identifiers:  []string{s.prefix},
			Name:         "Axisctl",
			Manufacturer: "axisctl",
		},
	})
}

// PublishSwitchState echoes the publish switch so Home Assistant shows it
func (s *MQTTSender) PublishSwitchState(on bool) {
	payload := "OFF"
	if on {
		payload = "ON"
	}
	s.Send(MQTTMessage{Topic: s.prefix + "/plant/publish", Payload: []byte(payload), QoS: 1, Retain: true})
}

// isDiscoveryTopic checks if a topic is an MQTT discovery config topic
func isDiscoveryTopic(topic string) bool {
	return strings.HasSuffix(topic, "/config")
}

// isSwitchStateTopic checks if a topic echoes the publish switch
func isSwitchStateTopic(topic string) bool {
	return strings.HasSuffix(topic, "/plant/publish")
}

func formatSignal(on bool) []byte {
	return []byte(strconv.FormatBool(on))
}

// mqttStateWorker publishes axis state, events and signals whenever they change
func mqttStateWorker(ctx context.Context, sender *MQTTSender, inputChan <-chan PlantState) {
	lastAxes := map[string]AxisState{}
	lastSignals := map[string]bool{}

	for {
		select {
		case state := <-inputChan:
			for _, a := range state.Axes {
				if prev, ok := lastAxes[a.Name]; ok && prev == a {
					continue
				}
				lastAxes[a.Name] = a
				if err := sender.SendJSON(sender.prefix+"/"+a.Name+"/state", a, true); err != nil {
					log.Printf("Failed to encode state of %s: %v\n", a.Name, err)
				}
			}
			for _, e := range state.Events {
				if err := sender.SendJSON(sender.prefix+"/"+e.Axis+"/event", e, false); err != nil {
					log.Printf("Failed to encode event of %s: %v\n", e.Axis, err)
				}
			}
			for name, on := range state.Signals {
				if prev, ok := lastSignals[name]; ok && prev == on {
					continue
				}
				lastSignals[name] = on
				sender.Send(MQTTMessage{
					Topic:   sender.prefix + "/signal/" + name + "/state",
					Payload: formatSignal(on),
					Retain:  true,
				})
			}

		case <-ctx.Done():
			return
		}
	}
}

// mqttSenderWorker handles outgoing MQTT messages, queuing them until a client connects
func mqttSenderWorker(
	ctx context.Context,
	outgoingChan <-chan MQTTMessage,
	clientChan <-chan mqtt.Client,
) {
	log.Println("MQTT sender worker started")

	var client mqtt.Client
	var messageQueue []MQTTMessage

	for {
		select {
		case newClient := <-clientChan:
			log.Println("MQTT sender worker received new client")
			client = newClient

			// Process any queued messages now that we have a client
			if client != nil && client.IsConnected() {
				queuedCount := len(messageQueue)
				for _, msg := range messageQueue {
					token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
					token.Wait()
					if token.Error() != nil {
						log.Printf("Failed to publish queued message to %s: %v\n", msg.Topic, token.Error())
					}
				}
				messageQueue = nil
				if queuedCount > 0 {
					log.Printf("MQTT sender worker processed %d queued messages\n", queuedCount)
				}
			}

		case msg := <-outgoingChan:
			if client != nil && client.IsConnected() {
				token := client.Publish(msg.Topic, msg.QoS, msg.Retain, msg.Payload)
				token.Wait()
				if token.Error() != nil {
					log.Printf("Failed to publish to %s: %v\n", msg.Topic, token.Error())
				}
				continue
			}

			// No client yet, queue the message and drop the oldest once full
			if len(messageQueue) == maxQueuedMessages {
				messageQueue = messageQueue[1:]
			}
			messageQueue = append(messageQueue, msg)

		case <-ctx.Done():
			log.Println("MQTT sender worker stopped")
			return
		}
	}
}

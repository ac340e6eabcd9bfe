package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ryansname/axisctl/src/axis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPlant builds a plant with a plain lift axis and a follower
func testPlant(t *testing.T) *Plant {
	t.Helper()
	c := DefaultConfig()
	c.Axes = []AxisConfig{
		{Name: "lift", Motion: axis.DefaultConfig()},
		{Name: "tracker", Motion: axis.DefaultConfig()},
	}
	c.Behaviors = []BehaviorConfig{{Kind: KindFollow, Axis: "tracker"}}
	require.NoError(t, c.Validate())
	p, err := buildPlant(c)
	require.NoError(t, err)
	return p
}

func apply(t *testing.T, p *Plant, topic, value string) error {
	t.Helper()
	cmd, err := parseCommand("axisctl", topic, value)
	require.NoError(t, err)
	return cmd(p)
}

func TestParseCommand_DriveTo(t *testing.T) {
	p := testPlant(t)
	require.NoError(t, apply(t, p, "axisctl/lift/set/drive_to", "42.5"))

	lift, _ := p.Axis("lift")
	assert.Equal(t, 42.5, lift.TargetPosition)
}

func TestParseCommand_DriveToIn(t *testing.T) {
	p := testPlant(t)
	require.NoError(t, apply(t, p, "axisctl/lift/set/drive_to", "50 2"))

	lift, _ := p.Axis("lift")
	assert.Equal(t, 50.0, lift.TargetPosition)
	// 50 units in 2 seconds without acceleration
	assert.Equal(t, 25.0, lift.TargetSpeed)
}

func TestParseCommand_Jog(t *testing.T) {
	p := testPlant(t)
	lift, _ := p.Axis("lift")

	require.NoError(t, apply(t, p, "axisctl/lift/set/jog", "forward"))
	assert.True(t, lift.IsJogging())

	require.NoError(t, apply(t, p, "axisctl/lift/set/jog", "stop"))
	assert.False(t, lift.IsJogging())

	_, err := parseCommand("axisctl", "axisctl/lift/set/jog", "sideways")
	assert.ErrorIs(t, err, errBadPayload)
}

func TestParseCommand_Overrides(t *testing.T) {
	p := testPlant(t)
	lift, _ := p.Axis("lift")

	require.NoError(t, apply(t, p, "axisctl/lift/set/position_override", "12"))
	assert.True(t, lift.IsOverridden())

	require.NoError(t, apply(t, p, "axisctl/lift/set/position_override", "off"))
	assert.False(t, lift.IsOverridden())

	require.NoError(t, apply(t, p, "axisctl/lift/set/speed_override", "3"))
	assert.True(t, lift.IsOverridden())
}

func TestParseCommand_Stop(t *testing.T) {
	p := testPlant(t)
	lift, _ := p.Axis("lift")
	lift.Forward()

	require.NoError(t, apply(t, p, "axisctl/lift/set/stop", ""))
	assert.False(t, lift.IsJogging())
	assert.True(t, lift.IsStopped())
}

func TestParseCommand_InputsAndSignals(t *testing.T) {
	p := testPlant(t)
	p.Signal("ready")

	require.NoError(t, apply(t, p, "axisctl/tracker/set/input/input", "7"))
	p.Tick(0.1)
	tracker, _ := p.Axis("tracker")
	assert.Equal(t, 7.0, tracker.Position())

	require.NoError(t, apply(t, p, "axisctl/signal/ready/set", "ON"))
	assert.True(t, p.Signal("ready").Get())

	assert.ErrorIs(t, apply(t, p, "axisctl/tracker/set/input/bogus", "1"), errUnknownInput)
	assert.ErrorIs(t, apply(t, p, "axisctl/signal/missing/set", "on"), errUnknownSignal)
	assert.ErrorIs(t, apply(t, p, "axisctl/nope/set/stop", ""), errUnknownAxis)
}

func TestParseCommand_PlantSpeedOverride(t *testing.T) {
	p := testPlant(t)
	require.NoError(t, apply(t, p, "axisctl/plant/set/speed_override", "2"))
	assert.Equal(t, 2.0, p.SpeedOverride())
}

func TestParseCommand_Rejects(t *testing.T) {
	cases := []struct{ topic, value string }{
		{"other/lift/set/stop", ""},
		{"axisctl/lift/state", ""},
		{"axisctl/lift/set/fly", ""},
		{"axisctl/lift/set/input", "1"},
		{"axisctl/plant/set/gravity", "1"},
		{"axisctl/lift/set/drive_to", ""},
		{"axisctl/lift/set/drive_to", "1 2 3"},
		{"axisctl/lift/set/drive_to", "up"},
		{"axisctl/lift/set/reset", "maybe"},
	}
	for _, tc := range cases {
		_, err := parseCommand("axisctl", tc.topic, tc.value)
		assert.Error(t, err, "%s %q", tc.topic, tc.value)
	}
}

func TestIsPublishTopic(t *testing.T) {
	assert.True(t, isPublishTopic("axisctl", "axisctl/plant/set/publish"))
	assert.False(t, isPublishTopic("axisctl", "axisctl/plant/set/speed_override"))
}

// directController runs commands inline, for tests without a simulation worker
type directController struct {
	plant *Plant
}

func (c directController) Do(_ context.Context, fn func(p *Plant) error) error {
	return fn(c.plant)
}

func TestCommandWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := testPlant(t)
	msgChan := make(chan InboundMessage)
	publishChan := make(chan bool, 1)
	go commandWorker(ctx, "axisctl", directController{p}, msgChan, publishChan)

	msgChan <- InboundMessage{Topic: "axisctl/plant/set/publish", Value: "OFF"}
	select {
	case on := <-publishChan:
		assert.False(t, on)
	case <-time.After(time.Second):
		require.FailNow(t, "publish switch not forwarded")
	}

	msgChan <- InboundMessage{Topic: "axisctl/plant/set/speed_override", Value: "4"}
	// The unbuffered send below only completes once the previous command was applied
	msgChan <- InboundMessage{Topic: "axisctl/lift/set/bogus", Value: ""}
	assert.Equal(t, 4.0, p.SpeedOverride())
}

func TestMQTTStateWorker_PublishesChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan MQTTMessage, 10)
	in := make(chan PlantState)
	go mqttStateWorker(ctx, NewMQTTSender(out, "axisctl"), in)

	state := PlantState{
		Time:    1,
		Axes:    []AxisState{{Status: axis.Status{Name: "lift", Position: 5}}},
		Signals: map[string]bool{"ready": true},
		Events:  []EventRecord{{Time: 1, Axis: "lift", Kind: "at_position"}},
	}
	in <- state
	// Same axis state and signal again, only the event is new
	in <- state
	in <- PlantState{Time: 2}

	var topics []string
	for len(out) > 0 {
		msg := <-out
		topics = append(topics, msg.Topic)
		if msg.Topic == "axisctl/lift/state" {
			var decoded map[string]any
			require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
			assert.Equal(t, 5.0, decoded["position"])
			assert.True(t, msg.Retain)
		}
	}
	assert.Equal(t, []string{
		"axisctl/lift/state",
		"axisctl/lift/event",
		"axisctl/signal/ready/state",
		"axisctl/lift/event",
	}, topics)
}

func TestMQTTInterceptor_GatesStateMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan MQTTMessage)
	out := make(chan MQTTMessage, 10)
	enable := make(chan bool)
	go mqttInterceptorWorker(ctx, "State", in, out, enable, nil)

	in <- MQTTMessage{Topic: "axisctl/lift/state"}
	assert.Equal(t, "axisctl/lift/state", (<-out).Topic)

	enable <- false
	in <- MQTTMessage{Topic: "axisctl/lift/state"}
	in <- MQTTMessage{Topic: "homeassistant/sensor/axisctl_lift_position/config"}
	assert.Equal(t, "homeassistant/sensor/axisctl_lift_position/config", (<-out).Topic)
	assert.Empty(t, out)

	enable <- true
	in <- MQTTMessage{Topic: "axisctl/lift/state"}
	assert.Equal(t, "axisctl/lift/state", (<-out).Topic)
}

func TestCreateAxisEntities(t *testing.T) {
	out := make(chan MQTTMessage, 10)
	s := NewMQTTSender(out, "axisctl")
	require.NoError(t, s.CreateAxisEntities("lift", 0, 500))

	require.Len(t, out, 5)
	var last MQTTMessage
	for len(out) > 0 {
		last = <-out
		assert.True(t, isDiscoveryTopic(last.Topic))
		assert.True(t, last.Retain)
	}
	assert.Equal(t, "homeassistant/number/axisctl_lift_drive_to/config", last.Topic)

	var config map[string]any
	require.NoError(t, json.Unmarshal(last.Payload, &config))
	assert.Equal(t, "axisctl/lift/set/drive_to", config["command_topic"])
	assert.Equal(t, 500.0, config["max"])
}

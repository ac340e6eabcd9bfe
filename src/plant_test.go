package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/axisctl/src/axis"
	"github.com/ryansname/axisctl/src/behavior"
)

func TestBuildPlant_Example(t *testing.T) {
	p, err := buildPlant(ExampleConfig())
	require.NoError(t, err)

	require.Len(t, p.Axes(), 4)
	chain, err := p.Axis("chain")
	require.NoError(t, err)
	assert.True(t, chain.IsSubDrive())

	assert.Equal(t, []string{"clamp/in", "clamp/out", "lift/next", "lift/restart"}, p.Inputs())
	assert.NoError(t, p.SetSignal("lift_up", true))
}

func stationConfig() Config {
	c := DefaultConfig()
	for _, name := range []string{"stamp", "press", "gate"} {
		c.Axes = append(c.Axes, AxisConfig{Name: name, Motion: axis.DefaultConfig()})
	}
	trigger := behavior.DefaultStartOnConditionConfig()
	trigger.MoveTo = 20
	trigger.SensorHigh = true
	c.Behaviors = []BehaviorConfig{
		{
			Kind:    KindTimeCam,
			Axis:    "stamp",
			Curve:   []behavior.CurvePoint{{Master: 0, Slave: 0}, {Master: 0.2, Slave: 10}},
			TimeCam: &TimeCamConfig{TimeCamConfig: behavior.DefaultTimeCamConfig(), Next: "press"},
		},
		{
			Kind:  KindTimeCam,
			Axis:  "press",
			Curve: []behavior.CurvePoint{{Master: 0, Slave: 0}, {Master: 0.1, Slave: 3}},
		},
		{Kind: KindStartOnCondition, Axis: "gate", Sensor: "part", StartOnCondition: &trigger},
	}
	return c
}

func TestBuildPlant_TimeCamChainAndConditionalStart(t *testing.T) {
	c := stationConfig()
	require.NoError(t, c.Validate())
	p, err := buildPlant(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"gate/move_to", "press/cam_start", "stamp/cam_start"}, p.Inputs())

	require.NoError(t, p.SetInput("stamp", "cam_start", 1))
	require.NoError(t, p.SetSignal("part", true))
	for range 6 {
		p.Tick(0.1)
	}

	state := p.State()
	stamp, _ := state.Axis("stamp")
	press, _ := state.Axis("press")
	gate, _ := state.Axis("gate")
	assert.Equal(t, 10.0, stamp.Position)
	assert.Equal(t, 3.0, press.Position, "Press cam started when the stamp cam finished")
	assert.Equal(t, 20.0, gate.Position)
}

func TestBuildPlant_TimeCamNextNeedsTimeCam(t *testing.T) {
	c := stationConfig()
	c.Behaviors[0].TimeCam.Next = "gate"
	_, err := buildPlant(c)
	assert.ErrorContains(t, err, "has no time cam")
}

func TestPlant_Lookups(t *testing.T) {
	p := testPlant(t)

	_, err := p.Axis("missing")
	assert.ErrorIs(t, err, errUnknownAxis)
	assert.ErrorIs(t, p.SetInput("missing", "input", 1), errUnknownAxis)
	assert.ErrorIs(t, p.SetInput("lift", "input", 1), errUnknownInput)
	assert.ErrorIs(t, p.SetSignal("missing", true), errUnknownSignal)
}

func TestPlant_SpeedOverride(t *testing.T) {
	p := testPlant(t)
	p.SetSpeedOverride(2.5)
	assert.Equal(t, 2.5, p.SpeedOverride())
	p.SetSpeedOverride(0)
	assert.Equal(t, 1.0, p.SpeedOverride())
}

func TestPlant_StateTracksEnvelope(t *testing.T) {
	p := testPlant(t)

	require.NoError(t, p.SetInput("tracker", "input", 10))
	p.Tick(0.1)
	require.NoError(t, p.SetInput("tracker", "input", 4))
	p.Tick(0.1)

	state := p.State()
	tracker, ok := state.Axis("tracker")
	require.True(t, ok)
	assert.Equal(t, 4.0, tracker.Position)
	assert.Equal(t, 4.0, tracker.EnvelopeMin)
	assert.Equal(t, 10.0, tracker.EnvelopeMax)

	_, ok = state.Axis("missing")
	assert.False(t, ok)
}

func TestPlant_EventRecords(t *testing.T) {
	p := testPlant(t)
	lift, _ := p.Axis("lift")
	lift.DriveTo(10)

	var records []EventRecord
	for range 5 {
		records = append(records, eventRecords(p.Now(), p.Tick(0.1))...)
	}

	var lifts []EventRecord
	for _, r := range records {
		if r.Axis == "lift" {
			lifts = append(lifts, r)
		}
	}
	require.Len(t, lifts, 1)
	assert.Equal(t, "at_position", lifts[0].Kind)
	assert.Empty(t, lifts[0].Error)
}

func TestPlant_SaveLoad(t *testing.T) {
	p := testPlant(t)
	p.Signal("ready").Set(true)
	lift, _ := p.Axis("lift")
	lift.SetPosition(25)
	p.SetSpeedOverride(2)
	p.Tick(0.1)

	var buf bytes.Buffer
	require.NoError(t, p.Save(&buf))

	restored := testPlant(t)
	require.NoError(t, restored.Load(&buf))

	rlift, _ := restored.Axis("lift")
	assert.Equal(t, 25.0, rlift.Position())
	assert.True(t, restored.Signal("ready").Get())
	assert.Equal(t, 2.0, restored.SpeedOverride())
}

func TestPlant_LoadRejectsUnknownAxis(t *testing.T) {
	p := testPlant(t)
	lift, _ := p.Axis("lift")

	err := p.Load(strings.NewReader("axes:\n  - name: lift\n    position: 5\n  - name: ghost\n    position: 1\n"))
	assert.ErrorIs(t, err, errUnknownAxis)
	// Nothing is applied when any snapshot is unknown
	assert.Equal(t, 0.0, lift.CurrentPosition())
}

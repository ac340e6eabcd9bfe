package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/ryansname/axisctl/src/axis"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errBadPayload     = errors.New("bad payload")
)

// parseFloat parses a numeric payload
func parseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errBadPayload, value)
	}
	return f, nil
}

// parseSwitch accepts the payloads Home Assistant and people send for a switch
func parseSwitch(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not on or off", errBadPayload, value)
}

// isPublishTopic reports whether topic toggles state publishing
func isPublishTopic(prefix, topic string) bool {
	return topic == prefix+"/plant/set/publish"
}

// parseCommand turns a command topic and payload into a plant command.
//
// Topics, relative to prefix:
//
//	plant/set/speed_override         factor
//	signal/<name>/set                on|off
//	<axis>/set/drive_to              position [seconds]
//	<axis>/set/jog                   forward|backward|stop
//	<axis>/set/stop
//	<axis>/set/reset                 on|off
//	<axis>/set/position_override     position|off
//	<axis>/set/speed_override        speed|off
//	<axis>/set/input/<name>          value
func parseCommand(prefix, topic, value string) (func(p *Plant) error, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, topic)
	}
	parts := strings.Split(rest, "/")

	if len(parts) == 3 && parts[0] == "signal" && parts[2] == "set" {
		on, err := parseSwitch(value)
		if err != nil {
			return nil, err
		}
		name := parts[1]
		return func(p *Plant) error { return p.SetSignal(name, on) }, nil
	}

	if len(parts) < 3 || parts[1] != "set" {
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, topic)
	}

	if parts[0] == "plant" {
		if len(parts) != 3 || parts[2] != "speed_override" {
			return nil, fmt.Errorf("%w: %s", errUnknownCommand, topic)
		}
		factor, err := parseFloat(value)
		if err != nil {
			return nil, err
		}
		return func(p *Plant) error {
			p.SetSpeedOverride(factor)
			return nil
		}, nil
	}

	name := parts[0]
	if parts[2] == "input" {
		if len(parts) != 4 {
			return nil, fmt.Errorf("%w: %s", errUnknownCommand, topic)
		}
		v, err := parseFloat(value)
		if err != nil {
			return nil, err
		}
		input := parts[3]
		return func(p *Plant) error { return p.SetInput(name, input, v) }, nil
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, topic)
	}

	apply, err := parseAxisCommand(parts[2], value)
	if err != nil {
		return nil, err
	}
	return func(p *Plant) error {
		a, err := p.Axis(name)
		if err != nil {
			return err
		}
		apply(a)
		return nil
	}, nil
}

func parseAxisCommand(command, value string) (func(a *axis.Axis), error) {
	switch command {
	case "drive_to":
		fields := strings.Fields(value)
		if len(fields) == 0 || len(fields) > 2 {
			return nil, fmt.Errorf("%w: drive_to wants a position and optional seconds", errBadPayload)
		}
		target, err := parseFloat(fields[0])
		if err != nil {
			return nil, err
		}
		if len(fields) == 1 {
			return func(a *axis.Axis) { a.DriveTo(target) }, nil
		}
		seconds, err := parseFloat(fields[1])
		if err != nil {
			return nil, err
		}
		return func(a *axis.Axis) { a.DriveToIn(target, seconds) }, nil

	case "jog":
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "forward":
			return (*axis.Axis).Forward, nil
		case "backward":
			return (*axis.Axis).Backward, nil
		case "stop":
			return (*axis.Axis).JogStop, nil
		}
		return nil, fmt.Errorf("%w: jog wants forward, backward or stop", errBadPayload)

	case "stop":
		return (*axis.Axis).Stop, nil

	case "reset":
		on, err := parseSwitch(value)
		if err != nil {
			return nil, err
		}
		return func(a *axis.Axis) { a.SetReset(on) }, nil

	case "position_override", "speed_override":
		if strings.EqualFold(strings.TrimSpace(value), "off") {
			return (*axis.Axis).ReleaseOverrides, nil
		}
		v, err := parseFloat(value)
		if err != nil {
			return nil, err
		}
		if command == "position_override" {
			return func(a *axis.Axis) { a.SetPositionOverride(v) }, nil
		}
		return func(a *axis.Axis) { a.SetSpeedOverride(v) }, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnknownCommand, command)
}

// commandWorker applies MQTT commands to the plant
func commandWorker(
	ctx context.Context,
	prefix string,
	plant PlantController,
	msgChan <-chan InboundMessage,
	publishChan chan<- bool,
) {
	log.Println("MQTT command worker started")

	for {
		select {
		case msg := <-msgChan:
			if isPublishTopic(prefix, msg.Topic) {
				on, err := parseSwitch(msg.Value)
				if err != nil {
					log.Printf("Ignoring %s: %v\n", msg.Topic, err)
					continue
				}
				select {
				case publishChan <- on:
				case <-ctx.Done():
					return
				}
				continue
			}

			cmd, err := parseCommand(prefix, msg.Topic, msg.Value)
			if err != nil {
				log.Printf("Ignoring %s: %v\n", msg.Topic, err)
				continue
			}

			cmdCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = plant.Do(cmdCtx, cmd)
			cancel()
			if err != nil {
				log.Printf("Command %s %q failed: %v\n", msg.Topic, msg.Value, err)
			}

		case <-ctx.Done():
			log.Println("MQTT command worker stopped")
			return
		}
	}
}

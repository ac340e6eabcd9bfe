package main

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/ryansname/axisctl/src/axis"
)

// Command is a closure run by the simulation worker between ticks
type Command struct {
	Apply func(p *Plant) error
	Reply chan error
}

// PlantController runs functions against the plant on its owning goroutine
type PlantController interface {
	Do(ctx context.Context, fn func(p *Plant) error) error
}

// simClient submits commands to a running simWorker
type simClient struct {
	commands chan<- Command
}

func (c simClient) Do(ctx context.Context, fn func(p *Plant) error) error {
	cmd := Command{Apply: fn, Reply: make(chan error, 1)}
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// publishEvery is the number of ticks between published frames
func publishEvery(tickHz, publishHz float64) int {
	if publishHz <= 0 || publishHz >= tickHz {
		return 1
	}
	return int(math.Round(tickHz / publishHz))
}

// simWorker owns the plant: it ticks it at tickHz, runs commands between ticks and publishes a
// PlantState every few ticks
func simWorker(
	ctx context.Context,
	plant *Plant,
	tickHz, publishHz float64,
	commands <-chan Command,
	stateChan chan<- PlantState,
) {
	dt := 1 / tickHz
	every := publishEvery(tickHz, publishHz)
	ticker := time.NewTicker(time.Duration(float64(time.Second) * dt))
	defer ticker.Stop()

	log.Printf("Simulation worker started (%.0f Hz, publishing every %d ticks)\n", tickHz, every)

	var pending []EventRecord
	ticks := 0
	for {
		select {
		case <-ticker.C:
			events := plant.Tick(dt)
			logEvents(events)
			pending = append(pending, eventRecords(plant.Now(), events)...)

			ticks++
			if ticks%every != 0 {
				continue
			}
			state := plant.State()
			state.Events = pending
			pending = nil

			select {
			case stateChan <- state:
			case <-ctx.Done():
				return
			default:
				log.Println("Warning: state channel full, dropping frame")
			}

		case cmd := <-commands:
			cmd.Reply <- cmd.Apply(plant)

		case <-ctx.Done():
			log.Println("Simulation worker stopped")
			return
		}
	}
}

func logEvents(events []axis.Event) {
	for _, e := range events {
		if e.Kind == axis.EventJumpedToLowerLimit {
			log.Printf("%s: wrapped to lower limit\n", e.Axis.Name)
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
)

// Version is the program version
const Version = "0.3.0"

// SafeGo launches a goroutine with panic recovery and retry logic.
// On panic, retries with exponential backoff (max 10 retries).
// Retry count resets if worker ran for 2+ minutes before failing.
// After exhausting retries, cancels context to trigger shutdown.
func SafeGo(
	ctx context.Context,
	cancel context.CancelFunc,
	name string,
	fn func(ctx context.Context),
) {
	const maxRetries = 10
	const maxDelay = 10 * time.Minute
	const resetAfter = 2 * time.Minute

	go func() {
		retries := 0
		delay := time.Second

		for {
			startTime := time.Now()
			var panicValue any

			func() {
				defer func() {
					panicValue = recover()
				}()
				fn(ctx)
			}()

			// If function returned normally (no panic), exit the goroutine
			// This covers both context cancellation and unexpected completion
			if panicValue == nil {
				return
			}

			// If ran for resetAfter duration before panicking, reset retry state
			if time.Since(startTime) >= resetAfter {
				retries = 0
				delay = time.Second
			}

			retries++
			log.Printf("Panic in %s (attempt %d/%d): %v\n", name, retries, maxRetries, panicValue)

			if retries >= maxRetries {
				log.Printf("%s failed after %d retries, shutting down\n", name, maxRetries)
				cancel()
				return
			}

			log.Printf("%s will retry in %v\n", name, delay)
			select {
			case <-time.After(delay):
				delay = min(delay*2, maxDelay)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func root() {
	str := `axisctl simulates motion axes and exposes them over HTTP, MQTT and an interactive console

Usage:
	axisctl <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `axisctl is configured by a yaml file, axisctl.yml unless AXISCTL_CONFIG names another.
Values missing from the file take their defaults, and a missing file runs an empty plant.
The command mkconf writes a config file with the defaults and a small demonstration plant.
The command conf prints the effective configuration.

MQTT credentials are read from MQTT_USERNAME and MQTT_PASSWORD, which may be set in a .env file.
The plant state is loaded from state_file at startup and written back on shutdown.`
	fmt.Println(str)
}

// configPath is the config file to read
func configPath() string {
	if p := os.Getenv("AXISCTL_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigFile
}

func mkconf() {
	path := configPath()
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("%s already exists", path)
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := writeConfig(f, ExampleConfig()); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", path)
}

func printconf() {
	c, err := loadConfig(configPath())
	if err != nil {
		log.Fatal(err)
	}
	if err := writeConfig(os.Stdout, c); err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("axisctl version %v\n", Version)
}

// startMQTT wires the broker connection, command handling and state publishing
func startMQTT(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg Config,
	plant PlantController,
	stateChan <-chan PlantState,
) {
	username := os.Getenv("MQTT_USERNAME")
	password := os.Getenv("MQTT_PASSWORD")
	if username == "" {
		log.Println("Warning: MQTT_USERNAME not set, connecting anonymously")
	}

	msgChan := make(chan InboundMessage, 10)
	publishChan := make(chan bool, 1)
	stateOutChan := make(chan MQTTMessage, 100)
	mqttOutgoingChan := make(chan MQTTMessage, 100) // Larger buffer for queuing
	mqttClientChan := make(chan mqtt.Client, 1)     // Buffered to prevent blocking onConnect

	SafeGo(ctx, cancel, "mqtt-sender-worker", func(ctx context.Context) {
		mqttSenderWorker(ctx, mqttOutgoingChan, mqttClientChan)
	})

	sender := NewMQTTSender(stateOutChan, cfg.MQTT.Prefix)
	SafeGo(ctx, cancel, "mqtt-publish-interceptor", func(ctx context.Context) {
		mqttInterceptorWorker(ctx, "Publish", stateOutChan, mqttOutgoingChan, publishChan, sender)
	})

	if cfg.MQTT.Discovery {
		log.Println("Creating Home Assistant entities...")
		for _, ac := range cfg.Axes {
			var lower, upper float64
			if ac.Motion.Limits.Use {
				lower, upper = ac.Motion.Limits.Lower, ac.Motion.Limits.Upper
			}
			if err := sender.CreateAxisEntities(ac.Name, lower, upper); err != nil {
				log.Printf("Failed to create %s entities: %v\n", ac.Name, err)
			}
		}
		if err := sender.CreatePublishSwitch(); err != nil {
			log.Printf("Failed to create publish switch: %v\n", err)
		}
		sender.PublishSwitchState(true)
	}

	SafeGo(ctx, cancel, "mqtt-state-worker", func(ctx context.Context) {
		mqttStateWorker(ctx, sender, stateChan)
	})
	SafeGo(ctx, cancel, "mqtt-command-worker", func(ctx context.Context) {
		commandWorker(ctx, cfg.MQTT.Prefix, plant, msgChan, publishChan)
	})
	SafeGo(ctx, cancel, "mqtt-worker", func(ctx context.Context) {
		mqttWorker(ctx, cfg.MQTT, username, password, msgChan, mqttClientChan)
	})
	log.Println("MQTT workers started")
}

func run() {
	log.Println("Starting axisctl...")

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v\n", err)
	}

	cfg, err := loadConfig(configPath())
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	plant, err := buildPlant(cfg)
	if err != nil {
		log.Fatalf("error building plant: %v", err)
	}
	if cfg.StateFile != "" {
		err := loadStateFile(plant, cfg.StateFile)
		switch {
		case err == nil:
			log.Printf("Restored state from %s\n", cfg.StateFile)
		case !errors.Is(err, fs.ErrNotExist):
			log.Printf("Warning: ignoring state file %s: %v\n", cfg.StateFile, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	commands := make(chan Command)
	stateChan := make(chan PlantState, 10)
	controller := simClient{commands: commands}

	SafeGo(ctx, cancel, "sim-worker", func(ctx context.Context) {
		simWorker(ctx, plant, cfg.TickHz, cfg.PublishHz, commands, stateChan)
	})

	var downstreamChans []chan<- PlantState //nolint:prealloc // small slice

	if cfg.Console {
		statsChan := make(chan PlantState, 10)
		displayChan := make(chan DisplayData, 10)
		downstreamChans = append(downstreamChans, statsChan)
		SafeGo(ctx, cancel, "stats-worker", func(ctx context.Context) {
			statsWorker(ctx, statsChan, displayChan)
		})
		SafeGo(ctx, cancel, "debug-worker", func(ctx context.Context) {
			debugWorker(ctx, cancel, controller, cfg.StateFile, displayChan)
		})
	}

	if cfg.MQTT.Enabled {
		mqttStateChan := make(chan PlantState, 10)
		downstreamChans = append(downstreamChans, mqttStateChan)
		startMQTT(ctx, cancel, cfg, controller, mqttStateChan)
	}

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		hub := NewHub()
		wsChan := make(chan PlantState, 10)
		downstreamChans = append(downstreamChans, wsChan)
		SafeGo(ctx, cancel, "ws-hub-worker", func(ctx context.Context) {
			wsHubWorker(ctx, hub, wsChan)
		})

		srv = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           newRouter(controller, cfg.StateFile, hub),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Println("now listening for requests at", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("HTTP server failed: %v\n", err)
				cancel()
			}
		}()
	}

	SafeGo(ctx, cancel, "broadcast-worker", func(ctx context.Context) {
		broadcastWorker(ctx, stateChan, downstreamChans)
	})

	// Wait for interrupt signal or context cancellation (from panic)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("\nShutting down...")
	case <-ctx.Done():
		log.Println("\nShutting down due to error...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if cfg.StateFile != "" && ctx.Err() == nil {
		err := controller.Do(shutdownCtx, func(p *Plant) error { return saveStateFile(p, cfg.StateFile) })
		if err != nil {
			log.Printf("Failed to save state: %v\n", err)
		} else {
			log.Printf("Saved state to %s\n", cfg.StateFile)
		}
	}
	if srv != nil {
		_ = srv.Shutdown(shutdownCtx)
	}
	cancel()
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}

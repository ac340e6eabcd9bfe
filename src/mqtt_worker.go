package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// InboundMessage is an MQTT message received on a command topic
type InboundMessage struct {
	Topic string
	Value string
}

// commandTopics are the subscriptions the command surface needs
func commandTopics(prefix string) []string {
	return []string{
		prefix + "/+/set/#",
		prefix + "/signal/+/set",
	}
}

// connectBackOff paces the initial broker connection. Once connected paho reconnects on its own.
func connectBackOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     time.Second,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         30 * time.Second,
		MaxElapsedTime:      0, // keep trying until shutdown
		Clock:               backoff.SystemClock,
	}, ctx)
}

// mqttWorker manages MQTT connection and forwards command messages to a channel
func mqttWorker(
	ctx context.Context,
	cfg MQTTConfig,
	username, password string,
	msgChan chan<- InboundMessage,
	clientChan chan<- mqtt.Client,
) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	topics := commandTopics(cfg.Prefix)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetWill(cfg.Prefix+"/availability", "offline", 1, true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v\n", err)
	})

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("Connected to MQTT broker at %s\n", broker)
		client.Publish(cfg.Prefix+"/availability", 1, true, "online")

		// Send the new client to the sender worker
		select {
		case clientChan <- client:
			log.Println("Sent new MQTT client to sender worker")
		case <-ctx.Done():
			return
		}

		for _, topic := range topics {
			token := client.Subscribe(topic, 1, func(client mqtt.Client, msg mqtt.Message) {
				select {
				case msgChan <- InboundMessage{Topic: msg.Topic(), Value: string(msg.Payload())}:
				case <-ctx.Done():
				}
			})

			if token.Wait() && token.Error() != nil {
				log.Printf("Failed to subscribe to topic %s: %v\n", topic, token.Error())
			} else {
				log.Printf("Subscribed to topic: %s\n", topic)
			}
		}
	})

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...\n", broker)
	err := backoff.Retry(func() error {
		token := client.Connect()
		token.Wait()
		if token.Error() != nil {
			log.Printf("Failed to connect to MQTT broker: %v\n", token.Error())
		}
		return token.Error()
	}, connectBackOff(ctx))
	if err != nil {
		log.Printf("Giving up on MQTT broker: %v\n", err)
		return
	}

	<-ctx.Done()

	if client.IsConnected() {
		client.Publish(cfg.Prefix+"/availability", 1, true, "offline").WaitTimeout(time.Second)
		client.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}

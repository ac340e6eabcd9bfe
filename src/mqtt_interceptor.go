package main

import (
	"context"
	"log"
)

// mqttInterceptorWorker gates state messages on the publish switch.
// It forwards messages from inputChan to outputChan only while publishing is enabled.
// Discovery topics and the switch echo are always forwarded.
func mqttInterceptorWorker(
	ctx context.Context,
	name string,
	inputChan <-chan MQTTMessage,
	outputChan chan<- MQTTMessage,
	enableChan <-chan bool,
	sender *MQTTSender,
) {
	log.Printf("%s interceptor started\n", name)
	enabled := true // Default to enabled

	for {
		select {
		case newEnabled := <-enableChan:
			if newEnabled != enabled {
				log.Printf("%s enabled: %v\n", name, newEnabled)
				enabled = newEnabled
			}
			if sender != nil {
				// The echo goes out through the interceptor itself, which is blocked here
				go sender.PublishSwitchState(newEnabled)
			}

		case msg := <-inputChan:
			if !enabled && !isDiscoveryTopic(msg.Topic) && !isSwitchStateTopic(msg.Topic) {
				continue
			}
			select {
			case outputChan <- msg:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			log.Printf("%s interceptor stopped\n", name)
			return
		}
	}
}

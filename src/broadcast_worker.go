package main

import (
	"context"
	"log"
)

// broadcastWorker receives PlantState frames and fans out to multiple downstream workers
// This implements the actor pattern where the broadcast logic is isolated in a single worker
func broadcastWorker(ctx context.Context, inputChan <-chan PlantState, outputChans []chan<- PlantState) {
	for {
		select {
		case state := <-inputChan:
			// Fan out to all downstream workers using non-blocking sends
			for i, ch := range outputChans {
				select {
				case ch <- state:
				case <-ctx.Done():
					return
				default:
					log.Printf("Warning: downstream worker %d channel full, dropping frame\n", i)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

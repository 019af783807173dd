package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Event types broadcast over SSE
const (
	RunStarted  = "run_started"
	EnvFinished = "env_finished"
	RunFinished = "run_finished"
)

// EventBroker manages SSE connections and broadcasts matrix run events
type EventBroker struct {
	clients map[chan string]bool
	mu      sync.RWMutex
}

// Global event broker instance
var broker = &EventBroker{
	clients: make(map[chan string]bool),
}

// GetBroker returns the global event broker
func GetBroker() *EventBroker {
	return broker
}

// Register adds a new SSE client
func (b *EventBroker) Register(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	log.Debug("SSE client connected", "total", len(b.clients))
}

// Unregister removes an SSE client
func (b *EventBroker) Unregister(client chan string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client)
	log.Debug("SSE client disconnected", "total", len(b.clients))
}

// Broadcast sends an event to all connected clients. Clients whose
// buffer is full are skipped rather than blocked on.
func (b *EventBroker) Broadcast(eventType string, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error("failed to marshal event data", "event", eventType, "err", err)
		return
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, jsonData)

	for client := range b.clients {
		select {
		case client <- message:
		default:
			// Client buffer full, skip
		}
	}
}

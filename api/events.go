package api

import (
	"fmt"
	"net/http"

	"matrun/events"
)

// SSEHandler handles Server-Sent Events connections
func SSEHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		// Buffer to prevent blocking the broadcaster
		client := make(chan string, 10)
		broker := events.GetBroker()
		broker.Register(client)
		defer broker.Unregister(client)

		fmt.Fprintf(w, "event: connected\ndata: {\"message\": \"Connected to matrun events\"}\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}

		for {
			select {
			case message := <-client:
				fmt.Fprint(w, message)
				if flusher, ok := w.(http.Flusher); ok {
					flusher.Flush()
				}
			case <-r.Context().Done():
				// Client disconnected
				return
			}
		}
	}
}

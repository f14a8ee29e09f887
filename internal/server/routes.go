// Package server wires HTTP handlers into a ServeMux for the relay's optional
// HTTP gateway.
package server

import "net/http"

// SetupRoutes returns a ServeMux with the health check, the WebSocket gateway
// into relay, the status endpoint and the test page.
func SetupRoutes(relay *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", relay.WebSocketHandler)
	mux.HandleFunc("/status", relay.StatusHandler)
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}

// Standalone mock of the ERP realtime endpoint. It accepts websocket
// connections on any namespace path and emits synthetic partial metric
// updates on the four dashboard channels, for local development and manual
// testing of the relay.
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// partialUpdate builds one synthetic push: a random subset of buckets, so
// the relay's merge behavior is actually exercised.
func partialUpdate() (string, map[string]any) {
	switch rand.Intn(4) {
	case 0:
		update := map[string]any{
			"purchase_orders": map[string]any{"pending": rand.Intn(20)},
		}
		if rand.Intn(2) == 0 {
			update["expense_claims"] = map[string]any{
				"pending":     rand.Intn(10),
				"total_value": rand.Intn(5000),
			}
		}
		return "approval_update", update
	case 1:
		return "budget_update", map[string]any{
			"departments": map[string]any{
				"allocated": 120000,
				"spent":     rand.Intn(120000),
			},
		}
	case 2:
		return "attendance_update", map[string]any{
			"today": map[string]any{
				"present":  40 + rand.Intn(10),
				"on_leave": rand.Intn(8),
			},
		}
	default:
		return "org_update", map[string]any{
			"headcount": map[string]any{"total": 120 + rand.Intn(5)},
		}
	}
}

func serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("Relay connected on namespace %s", r.URL.Path)

	// Drain incoming frames so pings and emits are answered.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		channel, update := partialUpdate()
		data, err := json.Marshal(update)
		if err != nil {
			log.Printf("Error encoding update: %v", err)
			continue
		}
		if err := conn.WriteJSON(frame{Event: channel, Data: data}); err != nil {
			log.Printf("Relay disconnected: %v", err)
			return
		}
		log.Printf("Emitted %s: %s", channel, data)
	}
}

func main() {
	addr := getEnv("MOCK_ERP_ADDRESS", ":9000")
	http.HandleFunc("/", serve)
	log.Printf("Mock ERP realtime endpoint listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Mock ERP endpoint failed: %v", err)
	}
}

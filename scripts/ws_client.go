// Package main runs a demo WebSocket client for run events.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

// Two Chicago to Indianapolis loads that share a truck.
const demoPlan = `{"seed":1,"shipments":[
 {"id":"demo-a","origin":{"lat":41.8781,"lon":-87.6298},"destination":{"lat":39.7684,"lon":-86.1581},
  "pickupWindow":{"earliest":"2025-03-03T08:00:00Z","latest":"2025-03-03T12:00:00Z"},
  "deliveryWindow":{"earliest":"2025-03-03T11:00:00Z","latest":"2025-03-03T22:00:00Z"},
  "weightLbs":10000,"linearFeet":15,"equipment":"dry_van"},
 {"id":"demo-b","origin":{"lat":41.8781,"lon":-87.6298},"destination":{"lat":39.7684,"lon":-86.1581},
  "pickupWindow":{"earliest":"2025-03-03T09:00:00Z","latest":"2025-03-03T13:00:00Z"},
  "deliveryWindow":{"earliest":"2025-03-03T11:00:00Z","latest":"2025-03-03T22:00:00Z"},
  "weightLbs":10000,"linearFeet":15,"equipment":"dry_van"}]}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect WS first so the run below is streamed
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/stream"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m struct {
				Type string         `json:"type"`
				Data map[string]any `json:"data"`
			}
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: run=%v op=%v routes=%v savings=%v", m.Type, m.Data["runId"], m.Data["operation"], m.Data["routes"], m.Data["savings"])
		}
	}()

	resp, err := http.Post(base+"/v1/plan", "application/json", bytes.NewReader([]byte(demoPlan)))
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("plan: %s", resp.Status)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

// Package main runs a demo WebSocket client for order events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body []byte) (*http.Response, error) {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	return http.DefaultClient.Do(req)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Register a carrier so the batch has someone to pick
	carrier := []byte(`{"id":"c_demo","code":"C-DEMO","name":"Demo Freight","serviceType":"all","reliabilityScore":4.5,"availabilityStatus":"available"}`)
	if resp, err := post(base, "/v1/carriers", carrier); err != nil {
		log.Fatal(err)
	} else {
		_ = resp.Body.Close()
	}

	// Create an order
	order := []byte(`{"id":"o_demo","priority":"standard","shippingAddress":{"line1":"1 Market St","city":"Springfield","postalCode":"62701","country":"US"},"items":[{"sku":"SKU-1","quantity":2,"weightKg":1.5}]}`)
	resp, err := post(base, "/v1/orders", order)
	if err != nil {
		log.Fatal(err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("Order ID: %s", created.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws", RawQuery: "orderId=" + created.ID}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger a carrier batch and watch the events arrive
	time.Sleep(500 * time.Millisecond)
	if resp, err := post(base, "/v1/orders/"+created.ID+"/assignments", []byte("{}")); err == nil {
		_ = resp.Body.Close()
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}

package api

import (
    "encoding/json"
    "net/http"
    "time"

    "github.com/gorilla/websocket"
)

// Websocket stream of assignment/quote events for one order. Feeds
// operator dashboards; carriers keep using webhooks or polling.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
    Type    string          `json:"type"`
    ID      string          `json:"id,omitempty"`
    Payload json.RawMessage `json:"payload,omitempty"`
}

// EventsWSHandler handles /v1/events/ws?orderId=...
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
    orderID := r.URL.Query().Get("orderId")
    if orderID == "" {
        writeProblem(w, http.StatusBadRequest, "orderId required", "", r.URL.Path)
        return
    }
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        return
    }
    defer func() { _ = conn.Close() }()

    conn.SetReadLimit(1 << 20)
    _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
    conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

    write := func(v any) error { return conn.WriteJSON(v) }

    ch := s.Broker.Subscribe(orderID)
    defer s.Broker.Unsubscribe(orderID, ch)

    done := make(chan struct{})
    // Read loop: only pings and the close handshake come from clients.
    go func() {
        defer close(done)
        for {
            var msg wsMessage
            if err := conn.ReadJSON(&msg); err != nil {
                return
            }
            if msg.Type == "ping" {
                _ = write(wsMessage{Type: "pong"})
            }
        }
    }()

    keepalive := time.NewTicker(20 * time.Second)
    defer keepalive.Stop()
    for {
        select {
        case evt, ok := <-ch:
            if !ok {
                return
            }
            payload, _ := json.Marshal(map[string]any{"type": evt.Type, "data": evt.Data})
            if err := write(wsMessage{Type: "next", ID: orderID, Payload: payload}); err != nil {
                return
            }
        case <-keepalive.C:
            if err := write(wsMessage{Type: "ping"}); err != nil {
                return
            }
        case <-done:
            return
        }
    }
}

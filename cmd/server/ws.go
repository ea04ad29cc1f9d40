package main

import (
    "net/http"
    "time"

    "github.com/gorilla/websocket"

    "github.com/KerimSelki/crypto-vault/internal/provider"
    "github.com/KerimSelki/crypto-vault/internal/scheduler"
)

const (
    wsWriteWait  = 10 * time.Second
    wsPongWait   = 60 * time.Second
    wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
    CheckOrigin:     func(r *http.Request) bool { return true },
    ReadBufferSize:  1024,
    WriteBufferSize: 4096,
}

// wsMessage is pushed after every scheduler event. Prices is the full
// unified map; it is omitted when the event did not change it.
type wsMessage struct {
    Type   string            `json:"type"` // snapshot or update
    Status scheduler.Status  `json:"status"`
    Prices provider.PriceMap `json:"prices,omitempty"`
}

// handleWS sends a snapshot, then one message per scheduler event until the
// client goes away. Clients only read; anything they send is discarded.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
    conn, err := upgrader.Upgrade(w, r, nil)
    if err != nil {
        s.log.WithError(err).Debug("websocket upgrade failed")
        return
    }
    defer conn.Close()

    events, unsubscribe := s.app.Scheduler.Subscribe(16)
    defer unsubscribe()

    // reader: handles pongs and notices a closed connection
    gone := make(chan struct{})
    go func() {
        defer close(gone)
        conn.SetReadLimit(512)
        _ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
        conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsPongWait)) })
        for {
            if _, _, err := conn.NextReader(); err != nil { return }
        }
    }()

    write := func(m wsMessage) error {
        _ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
        return conn.WriteJSON(m)
    }
    if err := write(wsMessage{Type: "snapshot", Status: s.app.Scheduler.Status(), Prices: s.app.Scheduler.Prices()}); err != nil { return }

    ping := time.NewTicker(wsPingPeriod)
    defer ping.Stop()
    for {
        select {
        case <-s.ctx.Done():
            _ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
            return
        case <-gone:
            return
        case ev, ok := <-events:
            if !ok { return }
            if err := write(wsMessage{Type: "update", Status: ev.Status, Prices: ev.Prices}); err != nil { return }
        case <-ping.C:
            _ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
            if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil { return }
        }
    }
}

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetroute/internal/trafficfeed"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsFrame is the text-message frame envelope. Binary messages carry raw frame
// bytes and are assigned sequence numbers in arrival order.
type wsFrame struct {
	Seq       int64     `json:"seq"`
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// FrameIngestHandler handles the WebSocket at /v1/cameras/{id}/feed: edge
// agents stream frames in, and the bounded queue absorbs bursts without ever
// blocking the connection.
func (s *Server) FrameIngestHandler(w http.ResponseWriter, r *http.Request, cameraID string) {
	if _, err := s.Feed.Snapshot(cameraID); err != nil {
		writeProblem(w, http.StatusNotFound, "Source not found", cameraID, r.URL.Path)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(8 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	var seq int64
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch mt {
		case websocket.BinaryMessage:
			seq++
			_ = s.Feed.Push(cameraID, trafficfeed.Frame{Seq: seq, Data: data})
		case websocket.TextMessage:
			var f wsFrame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			if f.Seq == 0 {
				seq++
				f.Seq = seq
			} else {
				seq = f.Seq
			}
			_ = s.Feed.Push(cameraID, trafficfeed.Frame{Seq: f.Seq, Data: f.Data, Timestamp: f.Timestamp})
		}
	}
}

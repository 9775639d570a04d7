package server

import (
	"io"
	"net"
	"net/http"

	"github.com/gorilla/websocket"
)

// WSHandler exposes the same binary protocol over websocket for browser
// clients: each frame (handshake prefix included) travels as one or
// more binary messages, and the stream semantics are identical to TCP.
func (s *Server) WSHandler() http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Origin policy belongs to the deployment's proxy layer.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debugf("websocket upgrade from %s: %v", r.RemoteAddr, err)
			return
		}
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		s.wg.Add(1)
		defer s.wg.Done()
		s.HandleStream(&wsStream{conn: conn}, ip)
	})
}

// wsStream adapts a websocket connection to the byte stream the wire
// codec reads and writes. Reads drain binary messages in order; each
// write emits one binary message.
type wsStream struct {
	conn *websocket.Conn
	r    io.Reader
}

func (ws *wsStream) Read(p []byte) (int, error) {
	for {
		if ws.r == nil {
			msgType, r, err := ws.conn.NextReader()
			if err != nil {
				return 0, err
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			ws.r = r
		}
		n, err := ws.r.Read(p)
		if err == io.EOF {
			ws.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (ws *wsStream) Write(p []byte) (int, error) {
	if err := ws.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (ws *wsStream) Close() error {
	return ws.conn.Close()
}

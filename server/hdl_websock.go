/******************************************************************************
 *
 *  Description :
 *
 *    Handler of websocket connections. The caller's identity arrives in
 *    the trusted X-Mercury-User header (or uid query parameter) set by
 *    the authenticating frontend; an absent identity means an anonymous
 *    session.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mercury-im/mercury/server/logs"
	t "github.com/mercury-im/mercury/server/store/types"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 55 * time.Second

	// Send pings to the peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the peer.
	maxMessageSize = 1 << 19 // 512K
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The frontend proxy is the trust boundary.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (sess *Session) closeWS() {
	sess.ws.Close()
}

func (sess *Session) readLoop() {
	defer func() {
		sess.closeWS()
		sess.cleanUp()
	}()

	sess.ws.SetReadLimit(maxMessageSize)
	sess.ws.SetReadDeadline(time.Now().Add(pongWait))
	sess.ws.SetPongHandler(func(string) error {
		sess.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Read a ClientComMessage.
		_, raw, err := sess.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				logs.Err.Println("ws: readLoop", sess.sid, err)
			}
			return
		}
		statsInc("IncomingMessagesWebsockTotal", 1)

		var msg ClientComMessage
		if err = json.Unmarshal(raw, &msg); err != nil {
			sess.queueOut(&ServerComMessage{Ctrl: &MsgCtrl{
				Code: 400, Text: "malformed json", Timestamp: t.TimeNow()}})
			continue
		}
		sess.lastTouch = time.Now()
		sess.dispatch(&msg)
	}
}

func (sess *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Break readLoop.
		sess.closeWS()
	}()

	for {
		select {
		case msg, ok := <-sess.send:
			if !ok {
				return
			}
			if err := wsWrite(sess.ws, websocket.TextMessage, msg); err != nil {
				logs.Err.Println("ws: writeLoop", sess.sid, err)
				return
			}
			statsInc("OutgoingMessagesWebsockTotal", 1)

		case <-sess.stop:
			wsWrite(sess.ws, websocket.CloseMessage, nil)
			return

		case <-ticker.C:
			if err := wsWrite(sess.ws, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsWrite writes a message to the websocket connection.
func wsWrite(ws *websocket.Conn, mt int, msg any) error {
	var bits []byte
	if msg != nil {
		bits = serializeFrame(msg)
	}
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(mt, bits)
}

// serveWebSocket upgrades the HTTP connection and starts the session
// loops.
func serveWebSocket(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		wrt.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ws, err := upgrader.Upgrade(wrt, req, nil)
	if err != nil {
		logs.Err.Println("ws: failed to upgrade", err)
		return
	}

	uid := callerIdentity(req)
	sess := globals.sessionStore.NewSession(ws, uid)
	logs.Info.Println("ws: session started", sess.sid, "user", uid.String())

	go sess.writeLoop()
	sess.readLoop()
}

// callerIdentity extracts the identity supplied by the authenticating
// frontend. The core trusts this value; credential validation is the
// frontend's concern.
func callerIdentity(req *http.Request) t.Uid {
	raw := req.Header.Get("X-Mercury-User")
	if raw == "" {
		raw = req.URL.Query().Get("uid")
	}
	return t.ParseUid(raw)
}

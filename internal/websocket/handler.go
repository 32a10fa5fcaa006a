package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a websocket connection to the hub for the given subject.
func ServeWs(hub *Hub, c *websocket.Conn, subject string) {
	client := &Client{Hub: hub, Conn: c, Subject: subject, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump() // runs in the handler goroutine
}

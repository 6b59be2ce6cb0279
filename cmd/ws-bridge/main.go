// Command ws-bridge exposes a stdio ACP server over a websocket endpoint.
// Each websocket connection spawns its own server subprocess and forwards
// newline-delimited JSON-RPC frames in both directions unchanged, so browser
// based clients can drive the protocol without a local pipe.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address for the websocket endpoint")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ws-bridge [-addr :8080] <server-binary> [args...]")
		os.Exit(1)
	}

	http.HandleFunc("/ws", handleWS(args))
	fmt.Printf("WebSocket bridge running on ws://%s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		// One server subprocess per connection; its lifetime is tied to the
		// websocket.
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)
		cmd.Stderr = os.Stderr

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting server:", err)
			return
		}
		defer cmd.Process.Kill()

		// Server stdout frames -> websocket, one text message per frame.
		go func() {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
			for scanner.Scan() {
				if err := conn.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
					log.Println("WS write error:", err)
					return
				}
			}
		}()

		// Websocket messages -> server stdin, newline-terminated.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}

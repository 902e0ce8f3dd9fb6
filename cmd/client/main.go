// Terminal client for the relay. Logs in over HTTP, attaches to the
// websocket gateway, and renders the event stream while reading commands
// from stdin:
//
//	/join CODE    join a room by code
//	/leave        leave the current room
//	/find ...     full-text search (--room, --from, --limit flags)
//	/quit         exit
//
// Anything else is sent as a message to the current room.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	ServerAddr string `envconfig:"SERVER_ADDR" default:"localhost:8080"`
	Email      string `envconfig:"CHAT_EMAIL"`
	Password   string `envconfig:"CHAT_PASSWORD"`
	Colours    bool   `envconfig:"CHAT_COLOURS" default:"true"`
}

type serverFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wireMessage struct {
	ID         string    `json:"id"`
	Room       string    `json:"room"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

func main() {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.Email == "" || cfg.Password == "" {
		log.Fatal("CHAT_EMAIL and CHAT_PASSWORD are required")
	}

	token, username, err := login(cfg)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	fmt.Printf("Logged in as %s\n", username)

	wsURL := url.URL{Scheme: "ws", Host: cfg.ServerAddr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		log.Fatalf("Websocket dial failed: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				fmt.Println("Connection closed:", err)
				return
			}
			var frame serverFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			render(cfg, frame)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/quit":
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			<-done
			return
		case strings.HasPrefix(line, "/join "):
			code := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "/join ")))
			send(conn, map[string]any{"type": "join", "room": code})
		case line == "/leave":
			send(conn, map[string]any{"type": "leave"})
		case strings.HasPrefix(line, "/find"):
			searchMessages(cfg, token, line)
		default:
			send(conn, map[string]any{"type": "send", "content": line})
		}
	}
	<-done
}

func send(conn *websocket.Conn, frame map[string]any) {
	if err := conn.WriteJSON(frame); err != nil {
		fmt.Println("Send failed:", err)
	}
}

func render(cfg Config, frame serverFrame) {
	switch frame.Type {
	case "messageReceived":
		var msg wireMessage
		if json.Unmarshal(frame.Payload, &msg) != nil {
			return
		}
		sender := msg.SenderName
		if cfg.Colours {
			sender = color.New(color.FgCyan).Render(sender)
		}
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), sender, msg.Content)

	case "joined":
		var payload struct {
			Room    string        `json:"room"`
			Name    string        `json:"name"`
			Members []string      `json:"members"`
			Backlog []wireMessage `json:"backlog"`
		}
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		fmt.Printf("Joined %s (%s), %d member(s) online\n", payload.Name, payload.Room, len(payload.Members))
		printBacklog(payload.Backlog)

	case "memberJoined", "memberLeft":
		var payload struct {
			Username string `json:"username"`
		}
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		verb := "joined"
		if frame.Type == "memberLeft" {
			verb = "left"
		}
		notice := fmt.Sprintf("* %s %s the room", payload.Username, verb)
		if cfg.Colours {
			notice = color.New(color.FgYellow).Render(notice)
		}
		fmt.Println(notice)

	case "presenceChanged":
		var payload struct {
			UserID string `json:"userId"`
			Online bool   `json:"online"`
		}
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		state := "online"
		if !payload.Online {
			state = "offline"
		}
		fmt.Printf("* %s is now %s\n", payload.UserID, state)

	case "memberTyping":
		var payload struct {
			Username string `json:"username"`
			IsTyping bool   `json:"isTyping"`
		}
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		if payload.IsTyping {
			fmt.Printf("* %s is typing...\n", payload.Username)
		}

	case "error":
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(frame.Payload, &payload) != nil {
			return
		}
		text := fmt.Sprintf("! %s: %s", payload.Code, payload.Message)
		if cfg.Colours {
			text = color.New(color.FgRed).Render(text)
		}
		fmt.Println(text)
	}
}

func printBacklog(backlog []wireMessage) {
	if len(backlog) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	// Backlog arrives most recent first; display oldest first.
	for i := len(backlog) - 1; i >= 0; i-- {
		msg := backlog[i]
		table.Append([]string{
			msg.CreatedAt.Local().Format("15:04:05"),
			msg.SenderName,
			msg.Content,
		})
	}
	table.Render()
}

func login(cfg Config) (token, username string, err error) {
	body, _ := json.Marshal(map[string]string{"email": cfg.Email, "password": cfg.Password})
	resp, err := http.Post(fmt.Sprintf("http://%s/api/login", cfg.ServerAddr), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", "", err
	}
	return payload.Token, payload.Username, nil
}

func searchMessages(cfg Config, token, raw string) {
	params := url.Values{"q": {strings.TrimPrefix(raw, "/find")}}
	req, err := http.NewRequest(http.MethodGet,
		fmt.Sprintf("http://%s/api/search?%s", cfg.ServerAddr, params.Encode()), nil)
	if err != nil {
		fmt.Println("Search failed:", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Search failed:", err)
		return
	}
	defer resp.Body.Close()

	var payload struct {
		Total uint64 `json:"total"`
		Hits  []struct {
			Room       string    `json:"room"`
			SenderName string    `json:"senderName"`
			Content    string    `json:"content"`
			At         time.Time `json:"at"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Println("Search failed:", err)
		return
	}

	fmt.Printf("%d match(es)\n", payload.Total)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Room", "Sender", "Message"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, hit := range payload.Hits {
		table.Append([]string{hit.At.Local().Format("Jan 02 15:04"), hit.Room, hit.SenderName, hit.Content})
	}
	table.Render()
}

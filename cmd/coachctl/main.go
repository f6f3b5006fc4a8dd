// Package main provides coachctl, a CLI client for the session
// orchestrator. It sends messages through the dispatch client so the
// at-most-one-outstanding-send rule holds even from the terminal, and can
// watch a session's realtime event feed.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/naiolune/zenithwell/internal/dispatch"
	"github.com/naiolune/zenithwell/internal/domain"
)

var (
	serverURL string
	userID    string
)

func main() {
	root := &cobra.Command{
		Use:   "coachctl",
		Short: "Client for the wellness session orchestrator",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "orchestrator base URL")
	root.PersistentFlags().StringVar(&userID, "user", "", "acting user id")

	root.AddCommand(newCreateCmd(), newChatCmd(), newWatchCmd(), newReadyCmd(), newStartCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newCreateCmd() *cobra.Command {
	var kind, category string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			var session domain.Session
			err := postJSON(serverURL+"/v1/sessions", map[string]string{
				"kind":     kind,
				"category": category,
			}, &session)
			if err != nil {
				return err
			}
			fmt.Printf("created session %s (%s, %s)\n", session.SessionID, session.Kind, session.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "individual", "session kind: individual, group, introduction")
	cmd.Flags().StringVar(&category, "category", "", "group session category")
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <session_id>",
		Short: "Chat interactively in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			client := dispatch.NewClient(&httpSender{}, dispatch.DefaultReplyTimeout)

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Println("Type a message and press enter. Ctrl-D to quit.")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				content := strings.TrimSpace(scanner.Text())
				if content == "" {
					continue
				}

				reply, err := client.Send(cmd.Context(), sessionID, userID, content)
				if err != nil {
					if rej, ok := domain.AsRejection(err); ok && rej.Reason == domain.RejectAlreadyPending {
						fmt.Println("(previous send still awaiting reply; retrying it)")
						reply, err = client.Resend(cmd.Context(), sessionID)
					}
					if err != nil {
						fmt.Printf("error: %v\n", err)
						continue
					}
				}
				fmt.Printf("coach: %s\n", reply.Content)
			}
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session_id>",
		Short: "Stream a session's realtime events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wsURL, err := websocketURL(serverURL, args[0])
			if err != nil {
				return err
			}

			header := http.Header{}
			if userID != "" {
				header.Set("X-User-ID", userID)
			}
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
			if err != nil {
				return fmt.Errorf("dial: %w", err)
			}
			defer conn.Close()

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt)
			go func() {
				<-interrupt
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				conn.Close()
			}()

			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return nil
				}
				var event domain.Event
				if err := json.Unmarshal(data, &event); err != nil {
					log.Printf("unreadable event: %v", err)
					continue
				}
				printEvent(event)
			}
		},
	}
}

func newReadyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ready <session_id>",
		Short: "Toggle readiness in a waiting group session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Ready bool `json:"ready"`
			}
			if err := postJSON(serverURL+"/v1/sessions/"+args[0]+"/ready", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("ready: %v\n", resp.Ready)
			return nil
		},
	}
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <session_id>",
		Short: "Start a waiting session (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var session domain.Session
			if err := postJSON(serverURL+"/v1/sessions/"+args[0]+"/start", nil, &session); err != nil {
				return err
			}
			fmt.Printf("session %s is %s\n", session.SessionID, session.Status)
			return nil
		},
	}
}

func printEvent(event domain.Event) {
	ts := time.UnixMilli(event.Ts).Format("15:04:05")
	payload, _ := json.Marshal(event.Payload)
	fmt.Printf("[%s] %s %s\n", ts, event.Type, payload)
}

func websocketURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/sessions/" + sessionID + "/ws"
	return u.String(), nil
}

// httpSender submits messages over the orchestrator's HTTP API.
type httpSender struct{}

type sendResponse struct {
	Assistant *domain.Message `json:"assistant_message"`
}

func (s *httpSender) SendMessage(ctx context.Context, sessionID, participantID, content string) (*domain.Message, error) {
	body, _ := json.Marshal(map[string]string{"content": content})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		serverURL+"/v1/sessions/"+sessionID+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", participantID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var remote struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if err := json.Unmarshal(data, &remote); err == nil && remote.Reason != "" {
			return nil, domain.Reject(domain.RejectReason(remote.Reason), remote.Error)
		}
		return nil, fmt.Errorf("server error [%d]: %s", resp.StatusCode, string(data))
	}

	var out sendResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unreadable reply: %w", err)
	}
	if out.Assistant == nil {
		return nil, fmt.Errorf("reply missing assistant message")
	}
	return out.Assistant, nil
}

func postJSON(rawURL string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server error [%d]: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/go2voice/internal/api"
	"github.com/mattjoyce/go2voice/internal/events"
)

type eventMsg events.Event

type statusMsg api.StatusResponse

type tickMsg time.Time

type errMsg error

type streamClosedMsg struct{ lastID int64 }

type reconnectMsg struct{}

// readSSE parses an SSE stream, calling fn per complete event. It returns
// the last event ID seen and the read error, nil on clean EOF.
func readSSE(r io.Reader, lastID int64, fn func(events.Event)) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cur events.Event
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if cur.Data != nil {
				if cur.At.IsZero() {
					cur.At = time.Now()
				}
				fn(cur)
				if cur.ID > lastID {
					lastID = cur.ID
				}
			}
			cur = events.Event{}
		case strings.HasPrefix(line, ":"):
			// keep-alive
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			cur.Data = json.RawMessage(line[6:])
		}
	}
	return lastID, scanner.Err()
}

// subscribe streams /events into ch until the connection drops. Reconnects
// resume from lastID.
func subscribe(apiURL, apiKey string, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequest(http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg(err)
		}
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if lastID > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return streamClosedMsg{lastID: lastID}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("GET /events: %s", resp.Status))
		}

		lastID, _ = readSSE(resp.Body, lastID, func(ev events.Event) { ch <- ev })
		return streamClosedMsg{lastID: lastID}
	}
}

func receive(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchStatus queries GET /status.
func fetchStatus(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest(http.MethodGet, apiURL+"/status", nil)
	if err != nil {
		return errMsg(err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errMsg(fmt.Errorf("GET /status: %s", resp.Status))
	}

	var s api.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return errMsg(fmt.Errorf("decode status: %w", err))
	}
	return statusMsg(s)
}

package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/go2voice/internal/api"
	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

func mustEvent(t *testing.T, id int64, typ string, data any) events.Event {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Data: b}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModel_DispatchEvents(t *testing.T) {
	m := *New("http://robot:8380/", "k")
	assert.Equal(t, "http://robot:8380", m.apiURL)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	sit := engine.Outcome{
		Text:     "앉아",
		Sent:     true,
		Best:     intent.Candidate{Code: intent.Sit, Score: 6},
		Decision: policy.Decision{Accepted: true, Intent: intent.Sit, Action: intent.Sit, Reason: policy.ReasonAccepted},
		Posture:  policy.PostureSit,
	}
	cooldown := engine.Outcome{
		Text:     "멈춰",
		Best:     intent.Candidate{Code: intent.StopMove, Score: 4},
		Decision: policy.Decision{Intent: intent.StopMove, Reason: policy.ReasonCooldown},
		Posture:  policy.PostureSit,
	}

	m = update(t, m, eventMsg(mustEvent(t, 1, events.TypeUtterancePartial, transcript.Transcript{Text: "앉"})))
	assert.Equal(t, "앉", m.partial)
	assert.Equal(t, pulseDots, m.pulse.Lit())

	m = update(t, m, eventMsg(mustEvent(t, 2, events.TypeDispatch, sit)))
	m = update(t, m, eventMsg(mustEvent(t, 3, events.TypeDispatch, cooldown)))

	assert.Empty(t, m.partial)
	assert.Equal(t, int64(3), m.lastID)
	assert.True(t, m.connected)
	require.Len(t, m.decisions, 2)
	assert.Equal(t, "멈춰", m.decisions[0].Outcome.Text, "newest first")
	assert.Equal(t, policy.PostureSit, m.status.Policy.Posture)

	rows := m.table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"StopMove", "-", "4.0", "cooldown"}, []string(rows[0][2:]))
	assert.Equal(t, []string{"Sit", "Sit", "6.0", "accepted"}, []string(rows[1][2:]))

	view := m.View()
	assert.Contains(t, view, "DECISIONS")
	assert.Contains(t, view, "cooldown")
}

func TestModel_DecisionsAreCapped(t *testing.T) {
	m := *New("http://x", "k")
	for i := range maxDecisions + 5 {
		m = update(t, m, eventMsg(mustEvent(t, int64(i+1), events.TypeDispatch, engine.Outcome{Text: "음"})))
	}
	assert.Len(t, m.decisions, maxDecisions)
	assert.Len(t, m.table.Rows(), maxDecisions)
}

func TestModel_ExecutorEvents(t *testing.T) {
	m := *New("http://x", "k")
	m = update(t, m, statusMsg(api.StatusResponse{
		Executor: api.ExecutorStatus{State: "ready", PID: 99, Output: []string{"==== Go2 Motion ===="}},
	}))
	assert.Equal(t, []string{"==== Go2 Motion ===="}, m.output)

	m = update(t, m, eventMsg(mustEvent(t, 1, events.TypeExecutorOutput, events.ExecutorOutput{Line: "got:3"})))
	assert.Equal(t, []string{"==== Go2 Motion ====", "got:3"}, m.output)

	m = update(t, m, eventMsg(mustEvent(t, 2, events.TypeExecutorState, events.ExecutorState{State: "terminated", ExitCode: 1})))
	assert.Equal(t, "terminated", m.status.Executor.State)
	assert.Equal(t, 1, m.status.Executor.ExitCode)
}

func TestModel_OutputIsCapped(t *testing.T) {
	m := *New("http://x", "k")
	lines := make([]string, maxOutput+10)
	for i := range lines {
		lines[i] = "line"
	}
	m.setOutput(lines)
	assert.Len(t, m.output, maxOutput)
}

func TestModel_StreamClosedKeepsResumePoint(t *testing.T) {
	m := *New("http://x", "k")
	m.connected = true
	m = update(t, m, streamClosedMsg{lastID: 41})
	assert.False(t, m.connected)
	assert.Equal(t, int64(41), m.lastID)
	assert.Contains(t, m.lastError, "reconnecting")
}

func TestModel_Quit(t *testing.T) {
	m := *New("http://x", "k")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: dispatch.decision",
		`data: {"text":"앉아"}`,
		"",
		"id: 8",
		"event: executor.output",
		`data: {"line":"got:3"}`,
		"",
		"id: 9",
		"event: executor.output",
	}, "\n")

	var got []events.Event
	last, err := readSSE(strings.NewReader(stream), 5, func(ev events.Event) { got = append(got, ev) })
	require.NoError(t, err)
	assert.Equal(t, int64(8), last)
	require.Len(t, got, 2, "incomplete trailing event is dropped")
	assert.Equal(t, events.TypeDispatch, got[0].Type)
	assert.JSONEq(t, `{"text":"앉아"}`, string(got[0].Data))
	assert.Equal(t, int64(8), got[1].ID)
}

func TestFetchStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.StatusResponse{
			Executor:    api.ExecutorStatus{State: "active", PID: 12},
			Policy:      policy.State{Posture: policy.PostureStand},
			Threshold:   1.2,
			Fingerprint: "ff",
		})
	}))
	defer ts.Close()

	msg := fetchStatus(ts.URL, "k")
	st, ok := msg.(statusMsg)
	require.True(t, ok, "got %T: %v", msg, msg)
	assert.Equal(t, "active", st.Executor.State)
	assert.Equal(t, policy.PostureStand, st.Policy.Posture)

	_, ok = fetchStatus(ts.URL, "wrong").(errMsg)
	assert.True(t, ok)
}

func TestPulse(t *testing.T) {
	var p Pulse
	now := time.Now()
	p.Decay(now)
	assert.Zero(t, p.Lit())

	p.Heard(now)
	assert.Equal(t, pulseDots, p.Lit())

	p.Decay(now.Add(3 * time.Second))
	assert.Equal(t, pulseDots-1, p.Lit())

	p.Decay(now.Add(time.Minute))
	assert.Zero(t, p.Lit())
}

func TestDescribe(t *testing.T) {
	remap := engine.Outcome{
		Text:     "일어나",
		Sent:     true,
		Decision: policy.Decision{Intent: intent.StandUp, Action: intent.RiseSit, Reason: policy.ReasonAccepted},
	}
	assert.Contains(t, describe(remap), "as RiseSit")
	assert.Contains(t, describe(engine.Outcome{Text: "그만", Quit: true}), "QUIT")
	assert.Contains(t, describe(engine.Outcome{Text: "음", Decision: policy.Decision{Reason: policy.ReasonNoMatch}}), "no-match")
}

package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/metrics"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR")
	os.Exit(m.Run())
}

// fakeDispatcher records every transcript it is handed.
type fakeDispatcher struct {
	got     []transcript.Transcript
	ctxErrs []error
}

func (f *fakeDispatcher) Handle(ctx context.Context, t transcript.Transcript) engine.Outcome {
	f.got = append(f.got, t)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return engine.Outcome{
		UtteranceID: t.ID,
		Source:      t.Source,
		Text:        t.Text,
		Final:       t.Final,
		Sent:        t.Final,
		Decision: policy.Decision{
			Accepted: t.Final,
			Intent:   intent.Sit,
			Action:   intent.Sit,
			Reason:   policy.ReasonAccepted,
		},
	}
}

const testSecret = "test-secret"

func testServer(d Dispatcher, m *metrics.Metrics) *Server {
	return New(Config{
		Listen:      "127.0.0.1:0",
		Path:        "/transcripts",
		Secret:      testSecret,
		MaxBodySize: 1024,
	}, d, m)
}

func rejectCount(t *testing.T, m *metrics.Metrics, cause string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "go2voice_ingress_rejected_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "cause" && label.GetValue() == cause {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func post(t *testing.T, s *Server, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transcripts", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleTranscript_ValidSignature(t *testing.T) {
	d := &fakeDispatcher{}
	s := testServer(d, nil)
	body := []byte(`{"text":"앉아"}`)

	rec := post(t, s, body, Sign(body, testSecret))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if len(d.got) != 1 {
		t.Fatalf("dispatched %d transcripts, want 1", len(d.got))
	}
	got := d.got[0]
	if got.Text != "앉아" || !got.Final || got.Source != SourceName {
		t.Errorf("transcript = %+v, want final 앉아 from %s", got, SourceName)
	}
	if got.ID == "" {
		t.Error("transcript ID is empty")
	}

	var out engine.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !out.Sent || out.Decision.Action != intent.Sit {
		t.Errorf("outcome = %+v, want sent SIT", out)
	}
}

func TestHandleTranscript_PlainHexSignature(t *testing.T) {
	d := &fakeDispatcher{}
	s := testServer(d, nil)
	body := []byte(`{"text":"멈춰"}`)
	sig := strings.TrimPrefix(Sign(body, testSecret), "sha256=")

	if rec := post(t, s, body, sig); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestHandleTranscript_ClientGoneStillDispatches(t *testing.T) {
	d := &fakeDispatcher{}
	s := testServer(d, nil)
	body := []byte(`{"text":"앉아"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/transcripts", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("X-Signature-256", Sign(body, testSecret))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if len(d.ctxErrs) != 1 {
		t.Fatalf("dispatched %d transcripts, want 1", len(d.ctxErrs))
	}
	if d.ctxErrs[0] != nil {
		t.Errorf("dispatch context err = %v, want nil after client disconnect", d.ctxErrs[0])
	}
}

func TestHandleTranscript_Partial(t *testing.T) {
	d := &fakeDispatcher{}
	s := testServer(d, nil)
	body := []byte(`{"text":"앉","final":false}`)

	rec := post(t, s, body, Sign(body, testSecret))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(d.got) != 1 || d.got[0].Final {
		t.Errorf("got %+v, want one partial transcript", d.got)
	}
}

func TestHandleTranscript_Rejections(t *testing.T) {
	valid := []byte(`{"text":"앉아"}`)
	big := []byte(`{"text":"` + strings.Repeat("가", 400) + `"}`)

	tests := []struct {
		name   string
		body   []byte
		sig    string
		status int
		cause  string
	}{
		{"missing signature", valid, "", http.StatusForbidden, "signature"},
		{"wrong secret", valid, Sign(valid, "other"), http.StatusForbidden, "signature"},
		{"not hex", valid, "sha256=zz", http.StatusForbidden, "signature"},
		{"tampered body", []byte(`{"text":"일어나"}`), Sign(valid, testSecret), http.StatusForbidden, "signature"},
		{"too large", big, Sign(big, testSecret), http.StatusRequestEntityTooLarge, "too_large"},
		{"malformed", []byte(`{"text":`), Sign([]byte(`{"text":`), testSecret), http.StatusBadRequest, "malformed"},
		{"empty text", []byte(`{"text":"  "}`), Sign([]byte(`{"text":"  "}`), testSecret), http.StatusBadRequest, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			m := metrics.New()
			s := testServer(d, m)

			rec := post(t, s, tt.body, tt.sig)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if len(d.got) != 0 {
				t.Errorf("rejected request reached the dispatcher: %+v", d.got)
			}
			if got := rejectCount(t, m, tt.cause); got != 1 {
				t.Errorf("ingress_rejected_total{cause=%q} = %v, want 1", tt.cause, got)
			}

			var resp errorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if resp.Error == "" {
				t.Error("error response has empty message")
			}
		})
	}
}

func TestHandleTranscript_WrongMethod(t *testing.T) {
	s := testServer(&fakeDispatcher{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/transcripts", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestVerifySignature(t *testing.T) {
	body := []byte("payload")
	sig := Sign(body, "s3cret")

	if err := verifySignature(body, sig, "s3cret"); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := verifySignature(body, sig, ""); err == nil {
		t.Error("empty secret accepted")
	}
	if err := verifySignature(body, "", "s3cret"); err == nil {
		t.Error("empty signature accepted")
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := testServer(&fakeDispatcher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Start(ctx); err != context.Canceled {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/policy"
)

func TestObserveDecision(t *testing.T) {
	m := New()

	m.ObserveDecision(policy.Decision{Accepted: true, Reason: policy.ReasonAccepted}, 2, 10*time.Millisecond)
	m.ObserveDecision(policy.Decision{Reason: policy.ReasonCooldown}, 2, time.Millisecond)
	m.ObserveDecision(policy.Decision{Reason: policy.ReasonNoMatch}, 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("cooldown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("no-match")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.intentScore))
}

func TestObserveSentAndFailures(t *testing.T) {
	m := New()
	m.ObserveSent(intent.Sit)
	m.ObserveSent(intent.Sit)
	m.ObserveSent(intent.ActionGo)
	m.ObserveSendFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.actionsSent.WithLabelValues("Sit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actionsSent.WithLabelValues("GO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sendFailures))
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetExecutorUp(true)
	m.SetPosture(policy.PostureStand)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executorUp))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.posture))

	m.SetExecutorUp(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.executorUp))
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.ObserveUtterance(true)
	m.ObserveIngressReject("signature")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `go2voice_utterances_total{kind="final"} 1`)
	assert.Contains(t, string(body), `go2voice_ingress_rejected_total{cause="signature"} 1`)
}

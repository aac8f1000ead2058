package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MillerSebastian/telegram-call/internal/flow"
	"github.com/MillerSebastian/telegram-call/internal/session"

	"github.com/gin-gonic/gin"
)

func newVoiceRouter(t *testing.T) (*gin.Engine, *session.Store, *recordingNotifier) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewStore(session.NewMemoryRepo(), testLogger())
	notifier := &recordingNotifier{}
	eng := flow.NewEngine(flow.DefaultConfig(), store, notifier, testLogger())
	gate := NewNotifyGate(30*time.Second, 5*time.Minute)
	h := VoiceHandlers{
		Engine: eng,
		Status: NewStatusService(store, gate, notifier, testLogger()),
	}

	r := gin.New()
	r.GET("/voice/step/:field", h.PromptStep)
	r.POST("/voice/step/:field", h.PromptStep)
	r.POST("/voice/collect/:field", h.CollectStep)
	r.GET("/voice/waiting", h.Waiting)
	r.POST("/voice/waiting", h.Waiting)
	r.GET("/voice/decision", h.Decision)
	r.POST("/voice/decision", h.Decision)
	r.POST("/voice/status", h.StatusCallback)
	return r, store, notifier
}

func getTwiML(t *testing.T, r *gin.Engine, path string) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, w.Code)
	}
	return w.Body.String()
}

func postForm(t *testing.T, r *gin.Engine, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)
	return w
}

func TestVoice_PromptStepRendersGather(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	body := getTwiML(t, r, "/voice/step/code4")
	for _, want := range []string{
		`numDigits="4"`,
		`action="/voice/collect/code4"`,
		`timeout="20"`,
		`language="es-ES"`,
		"<Redirect method=\"POST\">/voice/step/code4</Redirect>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("prompt missing %q:\n%s", want, body)
		}
	}
}

func TestVoice_PromptStepUnknownFieldHangsUp(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	body := getTwiML(t, r, "/voice/step/bogus")
	if !strings.Contains(body, "<Hangup") {
		t.Fatalf("unknown field must hang up:\n%s", body)
	}
}

func TestVoice_CollectAdvancesToNextStep(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	w := postForm(t, r, "/voice/collect/code4", url.Values{"CallSid": {"CA1"}, "Digits": {"4321"}})
	body := w.Body.String()
	if !strings.Contains(body, "You entered 4, 3, 2, 1.") {
		t.Fatalf("echo missing:\n%s", body)
	}
	if !strings.Contains(body, "/voice/step/code3") {
		t.Fatalf("expected redirect to the next step:\n%s", body)
	}
}

func TestVoice_CollectWithoutCallSidHangsUp(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	w := postForm(t, r, "/voice/collect/code4", url.Values{"Digits": {"4321"}})
	if !strings.Contains(w.Body.String(), "<Hangup") {
		t.Fatalf("missing call id must hang up:\n%s", w.Body.String())
	}
}

func TestVoice_CollectEmptyDigitsReprompts(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	w := postForm(t, r, "/voice/collect/code4", url.Values{"CallSid": {"CA1"}})
	if !strings.Contains(w.Body.String(), "/voice/step/code4") {
		t.Fatalf("empty digits must reprompt the same step:\n%s", w.Body.String())
	}
}

func TestVoice_CompletedBatchRedirectsToWaiting(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	postForm(t, r, "/voice/collect/code4", url.Values{"CallSid": {"CA1"}, "Digits": {"4321"}})
	postForm(t, r, "/voice/collect/code3", url.Values{"CallSid": {"CA1"}, "Digits": {"123"}})
	w := postForm(t, r, "/voice/collect/document", url.Values{"CallSid": {"CA1"}, "Digits": {"1234567"}})

	body := w.Body.String()
	if !strings.Contains(body, "/voice/waiting?stage=identity") {
		t.Fatalf("expected redirect to waiting:\n%s", body)
	}
	if !strings.Contains(body, `<Pause length="3"`) {
		t.Fatalf("seven digit entry must pause:\n%s", body)
	}
}

func TestVoice_WaitingPausesThenPolls(t *testing.T) {
	r, _, _ := newVoiceRouter(t)

	body := getTwiML(t, r, "/voice/waiting?CallSid=CA1&stage=identity")
	if !strings.Contains(body, `<Pause length="10"`) {
		t.Fatalf("waiting must pause before polling:\n%s", body)
	}
	if !strings.Contains(body, "/voice/decision?stage=identity") {
		t.Fatalf("waiting must redirect to the decision poll:\n%s", body)
	}
}

func TestVoice_WaitingShortCircuitsOnPendingDecision(t *testing.T) {
	r, store, _ := newVoiceRouter(t)
	store.Update(context.Background(), "CA1", func(s *session.Session) {
		s.SetDecision("identity", []int{1, 1, 1})
	})

	body := getTwiML(t, r, "/voice/waiting?CallSid=CA1&stage=identity")
	if strings.Contains(body, "<Pause") {
		t.Fatalf("pending decision must skip the hold pause:\n%s", body)
	}
	if !strings.Contains(body, "/voice/decision?stage=identity") {
		t.Fatalf("expected immediate redirect to the decision poll:\n%s", body)
	}
}

func TestVoice_DecisionRendersAcceptance(t *testing.T) {
	r, store, _ := newVoiceRouter(t)

	postForm(t, r, "/voice/collect/code4", url.Values{"CallSid": {"CA1"}, "Digits": {"4321"}})
	postForm(t, r, "/voice/collect/code3", url.Values{"CallSid": {"CA1"}, "Digits": {"123"}})
	postForm(t, r, "/voice/collect/document", url.Values{"CallSid": {"CA1"}, "Digits": {"1234567"}})
	store.Update(context.Background(), "CA1", func(s *session.Session) {
		s.SetDecision("identity", []int{1, 1, 1})
	})

	body := getTwiML(t, r, "/voice/decision?CallSid=CA1&stage=identity")
	if !strings.Contains(body, "Verification completed successfully") {
		t.Fatalf("expected acceptance message:\n%s", body)
	}
	if strings.Contains(body, "<Redirect") {
		t.Fatalf("acceptance is terminal:\n%s", body)
	}
}

func TestVoice_DecisionRendersCorrection(t *testing.T) {
	r, store, _ := newVoiceRouter(t)

	postForm(t, r, "/voice/collect/code4", url.Values{"CallSid": {"CA1"}, "Digits": {"4321"}})
	postForm(t, r, "/voice/collect/code3", url.Values{"CallSid": {"CA1"}, "Digits": {"123"}})
	postForm(t, r, "/voice/collect/document", url.Values{"CallSid": {"CA1"}, "Digits": {"1234567"}})
	store.Update(context.Background(), "CA1", func(s *session.Session) {
		s.SetDecision("identity", []int{1, 0, 1})
	})

	body := getTwiML(t, r, "/voice/decision?CallSid=CA1&stage=identity")
	if !strings.Contains(body, "/voice/step/code3") {
		t.Fatalf("rejection must send the caller back to the field:\n%s", body)
	}
}

func TestVoice_StatusCallbackAlwaysAcknowledges(t *testing.T) {
	r, store, _ := newVoiceRouter(t)

	// Even a payload without a call id is acknowledged.
	w := postForm(t, r, "/voice/status", url.Values{"CallStatus": {"ringing"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = postForm(t, r, "/voice/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"33"}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	sess, _ := store.Get("CA1")
	if sess.Status != session.StatusCompleted || sess.DurationSeconds != 33 {
		t.Fatalf("callback not applied: %+v", sess)
	}
}

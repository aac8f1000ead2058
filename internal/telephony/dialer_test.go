package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTwilioDialer_PlaceCall(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("bad credentials: %q %q", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+573001112233" {
			t.Errorf("unexpected To: %q", r.PostForm.Get("To"))
		}
		if r.PostForm.Get("Url") != "https://example.com/voice/step/code4" {
			t.Errorf("unexpected Url: %q", r.PostForm.Get("Url"))
		}
		if r.PostForm.Get("StatusCallback") != "https://example.com/voice/status" {
			t.Errorf("unexpected StatusCallback: %q", r.PostForm.Get("StatusCallback"))
		}
		if got := r.PostForm["StatusCallbackEvent"]; len(got) != len(statusCallbackEvents) {
			t.Errorf("expected %d callback events, got %v", len(statusCallbackEvents), got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"CA42"}`))
	}))
	defer srv.Close()

	d := NewTwilioDialer("AC123", "token", "+10000000000",
		"https://example.com/voice/step/code4", "https://example.com/voice/status", testLogger()).
		WithAPIBase(srv.URL)

	sid, err := d.PlaceCall(context.Background(), "+573001112233")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if sid != "CA42" {
		t.Fatalf("expected CA42, got %q", sid)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Calls.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestTwilioDialer_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"authenticate"}`))
	}))
	defer srv.Close()

	d := NewTwilioDialer("AC123", "bad", "+10000000000", "https://x/voice", "https://x/status", testLogger()).
		WithAPIBase(srv.URL)

	if _, err := d.PlaceCall(context.Background(), "+573001112233"); err == nil {
		t.Fatalf("expected error on provider rejection")
	}
}

func TestTwilioDialer_MissingSidIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d := NewTwilioDialer("AC123", "token", "+10000000000", "https://x/voice", "https://x/status", testLogger()).
		WithAPIBase(srv.URL)

	if _, err := d.PlaceCall(context.Background(), "+573001112233"); err == nil {
		t.Fatalf("expected error for a response without a call sid")
	}
}

package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_SendMessageForm(t *testing.T) {
	var gotPath, gotChat, gotMode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotChat = r.PostForm.Get("chat_id")
		gotMode = r.PostForm.Get("parse_mode")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	c := NewClient("tok123", testLogger()).WithBaseURL(srv.URL)
	if err := c.SendMessage(context.Background(), -100123, "<b>hi</b>"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotPath != "/bottok123/sendMessage" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotChat != "-100123" || gotMode != "HTML" {
		t.Fatalf("form mismatch: chat=%q mode=%q", gotChat, gotMode)
	}
}

func TestClient_SendMessageErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("tok", testLogger()).WithBaseURL(srv.URL)
	if err := c.SendMessage(context.Background(), 1, "hi"); err == nil {
		t.Fatalf("expected error for a rejected send")
	}
}

func TestClient_GetUpdatesPassesOffset(t *testing.T) {
	var gotOffset string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOffset = r.URL.Query().Get("offset")
		_, _ = w.Write([]byte(`{"ok":true,"result":[
			{"update_id":11,"message":{"message_id":5,"chat":{"id":42},"text":"/call +573001112233"}},
			{"update_id":12}
		]}`))
	}))
	defer srv.Close()

	c := NewClient("tok", testLogger()).WithBaseURL(srv.URL)
	updates, err := c.GetUpdates(context.Background(), 11, 0)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotOffset != "11" {
		t.Fatalf("offset not passed: %q", gotOffset)
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Message == nil || updates[0].Message.Chat.ID != 42 {
		t.Fatalf("message decode mismatch: %+v", updates[0])
	}
	if updates[1].Message != nil {
		t.Fatalf("empty update must have a nil message")
	}
}

func TestClient_GetUpdatesNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"result":[]}`))
	}))
	defer srv.Close()

	c := NewClient("tok", testLogger()).WithBaseURL(srv.URL)
	if _, err := c.GetUpdates(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error for a not-ok reply")
	}
}

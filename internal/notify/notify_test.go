package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestSendBothTargets(t *testing.T) {
	var discordBody, slackBody []byte

	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		discordBody, _ = io.ReadAll(r.Body)
	}))
	defer discord.Close()
	slack := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slackBody, _ = io.ReadAll(r.Body)
	}))
	defer slack.Close()

	n := New(discord.URL, slack.URL)
	err := n.Send(context.Background(), Event{
		Title:    "Release 1.3.0 published",
		Message:  "registry propagation took 34s",
		Severity: SeverityInfo,
	})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	var d struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
		} `json:"embeds"`
	}
	if err := json.Unmarshal(discordBody, &d); err != nil {
		t.Fatalf("discord payload invalid: %v", err)
	}
	if len(d.Embeds) != 1 || d.Embeds[0].Title != "Release 1.3.0 published" {
		t.Errorf("discord payload = %s", discordBody)
	}

	var s struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(slackBody, &s); err != nil {
		t.Fatalf("slack payload invalid: %v", err)
	}
	if !strings.Contains(s.Text, "Release 1.3.0 published") {
		t.Errorf("slack payload = %s", slackBody)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	n := New(srv.URL, "")
	if err := n.Send(context.Background(), Event{Title: "t"}); err != nil {
		t.Fatalf("Send() failed after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestSendNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := New(srv.URL, "")
	if err := n.Send(context.Background(), Event{Title: "t"}); err == nil {
		t.Fatal("Send() succeeded, want error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 403)", calls.Load())
	}
}

func TestEnabled(t *testing.T) {
	if New("", "").Enabled() {
		t.Error("Enabled() = true with no webhooks")
	}
	if !New("http://example.com", "").Enabled() {
		t.Error("Enabled() = false with discord webhook")
	}
}

package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

const atomXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/" xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <title>Agent Orchestration Walkthrough</title>
    <yt:videoId>abc123xyz00</yt:videoId>
    <link rel="alternate" href="https://www.youtube.com/watch?v=abc123xyz00"/>
    <published>2025-08-01T10:00:00+00:00</published>
    <media:group>
      <media:description>Building a planner and executor for an AI agent.</media:description>
    </media:group>
  </entry>
  <entry>
    <title>Robotics Demo Day</title>
    <yt:videoId>def456uvw11</yt:videoId>
    <link rel="alternate" href="https://www.youtube.com/watch?v=def456uvw11"/>
    <published>2025-06-15T10:00:00+00:00</published>
    <media:group>
      <media:description>A quick tour of my robotics projects.</media:description>
    </media:group>
  </entry>
</feed>`

const timedTextXML = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0" dur="3">Hello and welcome to the walkthrough.</text>
  <text start="3" dur="4">Today we build the planner stage.</text>
</transcript>`

func TestSearchByKeyword(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomXML))
	}))
	defer srv.Close()

	f := &Feed{ChannelID: "chan", FeedURL: srv.URL}
	out, err := (&SearchTool{Feed: f}).Invoke(context.Background(), map[string]string{"keywords": "robotics"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "Robotics Demo Day") {
		t.Fatalf("expected matching video, got: %s", out)
	}
	if strings.Contains(out, "Agent Orchestration Walkthrough") {
		t.Fatalf("unmatched video leaked into results: %s", out)
	}
}

func TestSearchListsAllWithoutKeywords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atomXML))
	}))
	defer srv.Close()

	f := &Feed{ChannelID: "chan", FeedURL: srv.URL}
	out, err := (&SearchTool{Feed: f}).Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "abc123xyz00") || !strings.Contains(out, "def456uvw11") {
		t.Fatalf("expected both video ids, got: %s", out)
	}
}

func TestTranscriptFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != "abc123xyz00" {
			t.Errorf("unexpected video id: %s", r.URL.Query().Get("v"))
		}
		w.Write([]byte(timedTextXML))
	}))
	defer srv.Close()

	f := &Feed{ChannelID: "chan", TimedTextURL: srv.URL}
	out, err := (&TranscriptTool{Feed: f}).Invoke(context.Background(), map[string]string{"video_id": "abc123xyz00"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "build the planner stage") {
		t.Fatalf("expected caption text, got: %s", out)
	}
}

func TestTranscriptMissingCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><transcript></transcript>`))
	}))
	defer srv.Close()

	f := &Feed{ChannelID: "chan", TimedTextURL: srv.URL}
	if _, err := (&TranscriptTool{Feed: f}).Invoke(context.Background(), map[string]string{"video_id": "nocaps"}); err == nil {
		t.Fatalf("expected no-captions error")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	s := strings.Repeat("x", 299) + "日本語"
	got := truncate(s, 300)
	if len(got) > 300 {
		t.Fatalf("truncate returned %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got[290:])
	}
	if short := truncate("short", 300); short != "short" {
		t.Fatalf("short strings must pass through, got %q", short)
	}
}

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type streamEvent struct {
	name string
	data string
}

// openEventStream connects to an SSE endpoint and delivers parsed events until the test ends.
func openEventStream(t *testing.T, client *browser, path string) <-chan streamEvent {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.server.URL+path, http.NoBody)
	if err != nil {
		t.Fatalf("failed to build stream request: %v", err)
	}
	request.Header.Set("Accept", "text/event-stream")
	response, err := client.client.Do(request)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		response.Body.Close()
		t.Fatalf("unexpected stream status %d", response.StatusCode)
	}
	if contentType := response.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		response.Body.Close()
		t.Fatalf("unexpected content type %q", contentType)
	}

	events := make(chan streamEvent, 32)
	go func() {
		defer close(events)
		defer response.Body.Close()
		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var current streamEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "":
				if current.name == "" {
					continue
				}
				select {
				case events <- current:
				case <-ctx.Done():
					return
				}
				current = streamEvent{}
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan streamEvent, name string) streamEvent {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				t.Fatalf("stream closed while waiting for %q", name)
			}
			if event.name == name {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func TestImageStreamDeliversInitialAndUpdatedSnapshots(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	viewer := newBrowser(t, server)
	actor := newBrowser(t, server)

	events := openEventStream(t, viewer, "/images/img-1/stream")

	var initial reactionsOnlyPayload
	if err := json.Unmarshal([]byte(nextEvent(t, events, realtimeEventReactions).data), &initial); err != nil {
		t.Fatalf("failed to decode reactions event: %v", err)
	}
	if initial.ImageID != "img-1" || len(initial.Reactions) != 0 {
		t.Fatalf("unexpected initial reactions %#v", initial)
	}

	if status, body := actor.do(http.MethodPost, "/images/img-1/reactions", `{"emoji":"✨"}`); status != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", status, body)
	}

	deadline := time.After(3 * time.Second)
	for {
		var groups groupsPayload
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for updated groups")
		default:
		}
		if err := json.Unmarshal([]byte(nextEvent(t, events, realtimeEventGroups).data), &groups); err != nil {
			t.Fatalf("failed to decode groups event: %v", err)
		}
		if len(groups.Groups) == 1 && groups.Groups[0].Emoji == "✨" && groups.Groups[0].Count == 1 {
			return
		}
	}
}

func TestImageStreamIgnoresOtherImages(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	viewer := newBrowser(t, server)

	events := openEventStream(t, viewer, "/images/img-1/stream")
	nextEvent(t, events, realtimeEventComments)

	if status, body := viewer.do(http.MethodPost, "/images/img-2/comments", `{"text":"elsewhere"}`); status != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", status, body)
	}

	select {
	case event := <-events:
		if event.name == realtimeEventComments {
			t.Fatalf("unexpected comments event for another image: %s", event.data)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFeedStreamDeliversActivity(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	viewer := newBrowser(t, server)

	events := openEventStream(t, viewer, "/feed/stream")
	var initial feedPayload
	if err := json.Unmarshal([]byte(nextEvent(t, events, realtimeEventFeed).data), &initial); err != nil {
		t.Fatalf("failed to decode feed event: %v", err)
	}
	if len(initial.Items) != 0 {
		t.Fatalf("expected empty initial feed, got %d", len(initial.Items))
	}

	if status, body := viewer.do(http.MethodPost, "/images/img-1/comments", `{"text":"lovely"}`); status != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", status, body)
	}

	var updated feedPayload
	if err := json.Unmarshal([]byte(nextEvent(t, events, realtimeEventFeed).data), &updated); err != nil {
		t.Fatalf("failed to decode feed event: %v", err)
	}
	if len(updated.Items) != 1 {
		t.Fatalf("expected one feed entry, got %d", len(updated.Items))
	}
	if !strings.HasSuffix(updated.Items[0].Activity, `commented on "foggy harbor": "lovely"`) {
		t.Fatalf("unexpected activity %q", updated.Items[0].Activity)
	}
}

func TestFeedStreamSendsHeartbeats(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{heartbeat: 20 * time.Millisecond})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	viewer := newBrowser(t, server)

	events := openEventStream(t, viewer, "/feed/stream")
	var heartbeat heartbeatPayload
	if err := json.Unmarshal([]byte(nextEvent(t, events, realtimeEventHeartbeat).data), &heartbeat); err != nil {
		t.Fatalf("failed to decode heartbeat: %v", err)
	}
	if heartbeat.Source != realtimeSourceBackend || heartbeat.Timestamp.IsZero() {
		t.Fatalf("unexpected heartbeat %#v", heartbeat)
	}
}

func TestImageStreamRejectsBlankImageID(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	client := newBrowser(t, server)

	status, body := client.do(http.MethodGet, "/images/%20/stream", "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", status)
	}
	expectErrorBody(t, body, "invalid_image_id")
}

package images

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testAccessKey = "test-access-key"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL + "/", AccessKey: testAccessKey})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	return client
}

func TestFetchPageRequestsLatestPhotos(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("page") != "2" || query.Get("per_page") != "12" || query.Get("order_by") != "latest" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if query.Get("client_id") != testAccessKey {
			t.Errorf("expected access key in query, got %q", query.Get("client_id"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a","alt_description":"a lake","urls":{"regular":"https://img/a"},"user":{"name":"Ann","links":{"html":"https://u/ann"}}},{"id":"b"}]`))
	})

	page, err := client.FetchPage(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page) != 2 || page[0].ID != "a" || page[1].ID != "b" {
		t.Fatalf("unexpected page %#v", page)
	}
	if page[0].Owner.Name != "Ann" || page[0].Owner.Links.HTML != "https://u/ann" {
		t.Fatalf("expected owner to decode, got %#v", page[0].Owner)
	}
	if page[0].URLs.Regular != "https://img/a" {
		t.Fatalf("expected regular url, got %q", page[0].URLs.Regular)
	}
	if page[0].Title() != "a lake" || page[1].Title() != UntitledImage {
		t.Fatalf("unexpected titles %q / %q", page[0].Title(), page[1].Title())
	}
}

func TestFetchPageReturnsFetchErrorOnNonSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Rate Limit Exceeded", http.StatusForbidden)
	})

	_, err := client.FetchPage(context.Background(), 1, 12)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusForbidden || fetchErr.Operation != opFetchPage {
		t.Fatalf("unexpected fetch error %#v", fetchErr)
	}
}

func TestFetchByIDMissingImageIsFetchError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/photos/missing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.FetchByID(context.Background(), "missing")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || !fetchErr.NotFound() {
		t.Fatalf("expected not found FetchError, got %v", err)
	}
}

func TestFetchByIDUnreachableIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: baseURL, AccessKey: testAccessKey})
	if err != nil {
		t.Fatalf("failed to construct client: %v", err)
	}
	_, err = client.FetchByID(context.Background(), "abc")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Fatalf("expected transport failure without status, got %d", fetchErr.StatusCode)
	}
}

func TestFetchByIDRejectsMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	})
	_, err := client.FetchByID(context.Background(), "abc")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestSearchDecodesResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/photos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("query") != "mountains" || r.URL.Query().Get("page") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"total":31,"total_pages":3,"results":[{"id":"m1"}]}`))
	})

	result, err := client.Search(context.Background(), " mountains ", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 31 || result.TotalPages != 3 || len(result.Results) != 1 {
		t.Fatalf("unexpected search result %#v", result)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	if _, err := NewClient(ClientConfig{AccessKey: "key"}); !errors.Is(err, errMissingBaseURL) {
		t.Fatalf("expected missing base url error, got %v", err)
	}
	if _, err := NewClient(ClientConfig{BaseURL: "https://api.unsplash.com"}); !errors.Is(err, errMissingAccessKey) {
		t.Fatalf("expected missing access key error, got %v", err)
	}
}

func TestTitleOfNilImage(t *testing.T) {
	if TitleOf(nil) != UntitledImage {
		t.Fatalf("expected fallback title for nil image")
	}
	if TitleOf(&Image{AltDescription: "  "}) != UntitledImage {
		t.Fatalf("expected fallback title for blank alt description")
	}
	if title := TitleOf(&Image{AltDescription: " pier "}); title != " pier " {
		t.Fatalf("expected alt description unchanged, got %q", title)
	}
}

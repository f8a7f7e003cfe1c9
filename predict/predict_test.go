package predict

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	coreconfig "github.com/m3rciful/predictbot/core/config"
)

func newTestClient(url string) *Client {
	return NewClient(coreconfig.UpstreamConfig{URL: url, RequestTimeoutSeconds: 2})
}

func historyJSON(latest int64, count int) string {
	body := `{"data":{"list":[`
	for i := 0; i < count; i++ {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"issueNumber":"%d","number":"%d"}`, latest-int64(i), i%10)
	}
	return body + `]}}`
}

func TestGenerateNextPickSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, historyJSON(20250601200, 10))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).GenerateNextPick(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("GenerateNextPick: %v", err)
	}
	if res.LatestPeriod != "20250601200" {
		t.Fatalf("latest = %q", res.LatestPeriod)
	}
	if res.Pick != PickBig && res.Pick != PickSmall {
		t.Fatalf("pick = %q", res.Pick)
	}
}

func TestGenerateNextPickUnauthorized(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := newTestClient(srv.URL).GenerateNextPick(context.Background(), "expired")
		srv.Close()
		if !IsUnauthorized(err) {
			t.Fatalf("status %d: err = %v, want unauthorized", status, err)
		}
	}
}

func TestGenerateNextPickServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateNextPick(context.Background(), "tok")
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %v, want network", KindOf(err))
	}
	if IsUnauthorized(err) {
		t.Fatal("server error must not be treated as credential failure")
	}
}

func TestGenerateNextPickEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"list":[]}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateNextPick(context.Background(), "tok")
	if KindOf(err) != KindEmpty {
		t.Fatalf("kind = %v, want empty", KindOf(err))
	}
}

func TestGenerateNextPickMalformedPayload(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>oops</html>`,
		"bad number":      `{"data":{"list":[{"issueNumber":"123","number":"x"}]}}`,
		"missing issue":   `{"data":{"list":[{"number":"5"}]}}`,
		"non-digit issue": `{"data":{"list":[{"issueNumber":"12-3","number":"5"}]}}`,
	}
	for name, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, body)
		}))
		_, err := newTestClient(srv.URL).GenerateNextPick(context.Background(), "tok")
		srv.Close()
		if KindOf(err) != KindMalformed {
			t.Fatalf("%s: kind = %v, want malformed", name, KindOf(err))
		}
	}
}

func TestGenerateNextPickConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(url).GenerateNextPick(context.Background(), "tok")
	if KindOf(err) != KindNetwork {
		t.Fatalf("kind = %v, want network", KindOf(err))
	}
}

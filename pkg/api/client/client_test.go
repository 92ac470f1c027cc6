package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListPendingReleases(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ReleaseReport" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		if r.URL.Query().Get("environment") != "Prod EU" {
			t.Errorf("unexpected environment %q", r.URL.Query().Get("environment"))
		}
		_, _ = w.Write([]byte(`[{"id":5,"name":"api","version":"1.1","workItems":[{"id":201,"type":"PBI","tasks":[{"id":101,"parentId":201,"type":"Task"}]}]}]`))
	}))
	defer srv.Close()

	cli, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	releases, err := cli.ListPendingReleases(context.Background(), "tok", "Prod EU")
	if err != nil {
		t.Fatalf("ListPendingReleases: %v", err)
	}
	if len(releases) != 1 || len(releases[0].WorkItems) != 1 || len(releases[0].WorkItems[0].Tasks) != 1 {
		t.Fatalf("unexpected releases %+v", releases)
	}
	if p := releases[0].WorkItems[0].Tasks[0].ParentID; p == nil || *p != 201 {
		t.Fatalf("expected parent id 201, got %v", p)
	}
}

func TestRefreshNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-functions-key") != "k" {
			t.Errorf("expected function key header")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cli, err := New(srv.URL, WithFunctionKey("k"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	release, err := cli.Refresh(context.Background(), "", 42)
	if err != nil || release != nil {
		t.Fatalf("expected nil release, got %+v / %v", release, err)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"upstream unavailable"}`))
	}))
	defer srv.Close()

	cli, _ := New(srv.URL)
	_, err := cli.ListPendingReleases(context.Background(), "tok", "")
	var apiErr APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadGateway || apiErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestNewDefaultsScheme(t *testing.T) {
	cli, err := New("reports.internal:7071")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if cli.baseURL != "http://reports.internal:7071" {
		t.Fatalf("unexpected base url %q", cli.baseURL)
	}
}

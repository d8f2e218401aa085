package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labdesk/backoffice/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelopeResponse(t *testing.T, w http.ResponseWriter, code int, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": "",
		"result":  json.RawMessage(raw),
	})
}

func TestUserByID_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users/u-1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		envelopeResponse(t, w, 200, model.User{ID: "u-1", FullName: "Tran Van A"})
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	user, err := c.UserByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user == nil || user.FullName != "Tran Van A" {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestUserByID_SoftFailureReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		envelopeResponse(t, w, 404, nil)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	user, err := c.UserByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("soft failure must not error, got %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}
}

func TestListAppointments_SoftFailureReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		envelopeResponse(t, w, 500, nil)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	appts, err := c.ListAppointments(context.Background())
	if err != nil {
		t.Fatalf("soft failure must not error, got %v", err)
	}
	if len(appts) != 0 {
		t.Fatalf("expected no appointments, got %d", len(appts))
	}
}

func TestUpdateOrder_SoftFailureIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		envelopeResponse(t, w, 409, nil)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	err := c.UpdateOrder(context.Background(), model.Order{ID: "o-1"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestCall_MalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if _, err := c.UserByID(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestCall_ServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	if _, err := c.UserByID(context.Background(), "u-1"); err == nil {
		t.Fatal("expected error for http 502")
	}
}

func TestUsersByIDs_MapsByID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string][]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req["ids"]) != 2 {
			t.Fatalf("expected 2 ids, got %v", req["ids"])
		}
		envelopeResponse(t, w, 200, []model.User{
			{ID: "u-1", FullName: "A"},
			{ID: "u-2", FullName: "B"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	users, err := c.UsersByIDs(context.Background(), []string{"u-1", "u-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if users["u-2"].FullName != "B" {
		t.Fatalf("unexpected mapping: %+v", users)
	}
}

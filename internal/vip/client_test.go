package vip

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/datamakelaar/internal/core"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewWithHTTPClient(srv.URL+"/api", srv.Client())
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	return c, srv
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestParseBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "https://api.example.com", want: "https://api.example.com/"},
		{raw: "https://api.example.com/", want: "https://api.example.com/"},
		{raw: "https://api.example.com/prod", want: "https://api.example.com/prod/"},
		{raw: "", wantErr: true},
		{raw: "api.example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := parseBaseURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", u)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBaseURL: %v", err)
			}
			if u.String() != tt.want {
				t.Errorf("got %q, want %q", u.String(), tt.want)
			}
		})
	}
}

func TestGetMetadata(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/metadata" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("objectType"); got != "Building" {
			t.Errorf("objectType = %q", got)
		}
		writeJSON(w, map[string]any{"objectTypes": []map[string]any{
			{"name": "Building", "attributes": []map[string]any{
				{"name": "Monument", "type": "BOOLEAN", "required": true},
			}},
		}})
	})

	payload, err := c.GetMetadata(context.Background(), "Building")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if len(payload.ObjectTypes) != 1 || payload.ObjectTypes[0].Attributes[0].Name != "Monument" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestGetMetadata_RetriesWithoutFilterOn500(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Has("objectType") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"objectTypes": []map[string]any{{"name": "Building"}}})
	})

	payload, err := c.GetMetadata(context.Background(), "Building")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if payload.ObjectTypes[0].Name != "Building" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestGetMetadata_OtherErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := c.GetMetadata(context.Background(), "Building")
	var apiErr *core.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestGetObjects_Params(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/objects/filterByObjectType" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string][]string{
			"objectType": {"Building"},
			"onlyActive": {"true"},
			"page":       {"2"},
			"pageSize":   {"1000"},
			"attributes": {"Monument", "Dakvorm - Building"},
			"Cluster":    {"C1"},
		}
		for k, v := range want {
			if !reflect.DeepEqual(q[k], v) {
				t.Errorf("%s = %v, want %v", k, q[k], v)
			}
		}
		if q.Has("identifier") {
			t.Error("identifier should be omitted when empty")
		}
		writeJSON(w, map[string]any{"objects": []any{}, "totalCount": 0})
	})

	_, err := c.GetObjects(context.Background(), core.ObjectQuery{
		ObjectType: "Building",
		Attributes: []string{"Monument", "Dakvorm - Building"},
		OnlyActive: true,
		Filters:    map[string]string{"Cluster": "C1"},
		Page:       2,
		PageSize:   1000,
	})
	if err != nil {
		t.Fatalf("GetObjects: %v", err)
	}
}

func TestGetObjects_ResponseShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCount int
		wantTotal int
	}{
		{
			name:      "page object",
			body:      `{"objects":[{"objectType":"Building","identifier":"B1","attributes":{}}],"totalCount":40}`,
			wantCount: 1,
			wantTotal: 40,
		},
		{
			name:      "bare list",
			body:      `[{"objectType":"Building","identifier":"B1"},{"objectType":"Building","identifier":"B2"}]`,
			wantCount: 2,
			wantTotal: 2,
		},
		{
			name:      "page without objects",
			body:      `{"totalCount":0}`,
			wantCount: 0,
			wantTotal: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			page, err := c.GetObjects(context.Background(), core.ObjectQuery{ObjectType: "Building", PageSize: 10})
			if err != nil {
				t.Fatalf("GetObjects: %v", err)
			}
			if len(page.Objects) != tt.wantCount || page.TotalCount != tt.wantTotal {
				t.Errorf("page = %+v", page)
			}
			if page.Objects == nil {
				t.Error("Objects should never be nil")
			}
		})
	}
}

func TestSaveObjects_Methods(t *testing.T) {
	tests := []struct {
		mode       core.WriteMode
		wantMethod string
	}{
		{mode: core.WriteUpdate, wantMethod: http.MethodPut},
		{mode: core.WriteUpsert, wantMethod: http.MethodPost},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method != tt.wantMethod {
					t.Errorf("method = %s, want %s", r.Method, tt.wantMethod)
				}
				if r.URL.Path != "/api/v1/objects" {
					t.Errorf("path = %s", r.URL.Path)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("content type = %q", ct)
				}

				var sent []core.APIObject
				if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				results := make([]core.ObjectResult, len(sent))
				for i, o := range sent {
					results[i] = core.ObjectResult{Identifier: o.Identifier, Success: i == 0, Message: "ok"}
				}
				writeJSON(w, results)
			})

			results, err := c.SaveObjects(context.Background(), tt.mode, []core.APIObject{
				{ObjectType: "Building", Identifier: "B1", Attributes: map[string]any{"Monument": "true"}},
				{ObjectType: "Building", Identifier: "B2", Attributes: map[string]any{"Monument": nil}},
			})
			if err != nil {
				t.Fatalf("SaveObjects: %v", err)
			}
			if len(results) != 2 || !results[0].Success || results[1].Success {
				t.Errorf("results = %+v", results)
			}
		})
	}
}

func TestDecodeResults(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []core.ObjectResult
	}{
		{name: "empty", body: "", want: nil},
		{name: "null", body: "null", want: nil},
		{
			name: "single object",
			body: `{"identifier":"B1","success":true}`,
			want: []core.ObjectResult{{Identifier: "B1", Success: true}},
		},
		{
			name: "missing success is a failure",
			body: `[{"identifier":"B1","message":"rejected"}]`,
			want: []core.ObjectResult{{Identifier: "B1", Message: "rejected"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeResults(json.RawMessage(tt.body))
			if err != nil {
				t.Fatalf("decodeResults: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{name: "bad gateway", status: http.StatusBadGateway, wantTransient: true},
		{name: "service unavailable", status: http.StatusServiceUnavailable, wantTransient: true},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantTransient: true},
		{name: "bad request", status: http.StatusBadRequest, wantTransient: false},
		{name: "internal error", status: http.StatusInternalServerError, wantTransient: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.SaveObjects(context.Background(), core.WriteUpdate, []core.APIObject{{ObjectType: "Building"}})

			var apiErr *core.APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Fatalf("err = %v", err)
			}
			if apiErr.Path != "/v1/objects" || apiErr.Method != http.MethodPut {
				t.Errorf("apiErr = %+v", apiErr)
			}
			if got := core.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v", got, tt.wantTransient)
			}
		})
	}
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := NewWithHTTPClient(addr, &http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewWithHTTPClient: %v", err)
	}
	_, err = c.GetObjects(context.Background(), core.ObjectQuery{ObjectType: "Building"})
	if !errors.Is(err, core.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestRequestTimeoutIsTransient(t *testing.T) {
	block := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.SaveObjects(ctx, core.WriteUpdate, []core.APIObject{{ObjectType: "Building"}})
	if !errors.Is(err, core.ErrTransient) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want transient deadline", err)
	}
}

func TestCancelIsNotTransient(t *testing.T) {
	block := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-block
	})
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.GetMetadata(ctx, "")
	if !errors.Is(err, context.Canceled) || core.IsTransient(err) {
		t.Fatalf("err = %v, want plain cancellation", err)
	}
}

func TestNew_ClientCredentials(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" || r.Form.Get("client_id") != "id" || r.Form.Get("client_secret") != "secret" {
			t.Errorf("form = %v", r.Form)
		}
		writeJSON(w, map[string]any{"access_token": "tok", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/metadata", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, map[string]any{"objectTypes": []any{}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(Options{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/oauth/token",
		ClientID:     "id",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for range 2 {
		if _, err := c.GetMetadata(context.Background(), ""); err != nil {
			t.Fatalf("GetMetadata: %v", err)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Errorf("token calls = %d, want 1 (token should be cached)", tokenCalls.Load())
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	tests := []Options{
		{BaseURL: "https://api.example.com", TokenURL: "https://api.example.com/token"},
		{BaseURL: "https://api.example.com", ClientID: "id", ClientSecret: "secret"},
		{TokenURL: "https://api.example.com/token", ClientID: "id", ClientSecret: "secret"},
	}
	for i, opts := range tests {
		if _, err := New(opts); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

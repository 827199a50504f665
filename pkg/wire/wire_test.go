package wire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loom-dev/loom/pkg/assets"
)

func TestHandlerFunc(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		return Text(200, "hello "+req.URL), nil
	})

	resp, err := h.Serve(context.Background(), &Request{Method: "GET", URL: "/greet"})
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if got := string(resp.Body); got != "hello /greet" {
		t.Errorf("body = %q, want %q", got, "hello /greet")
	}
}

func TestSSRContext_Call(t *testing.T) {
	sctx := &SSRContext{
		Assets: assets.Manifest{},
		APIs: map[string]Handler{
			"api": HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				return JSON(200, []byte(`{"ok":true}`)), nil
			}),
		},
	}

	resp, err := sctx.Call(context.Background(), "api", &Request{Method: "GET", URL: "/api/ping"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Status != 200 {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if got := string(resp.Body); got != `{"ok":true}` {
		t.Errorf("body = %q", got)
	}
}

func TestSSRContext_CallUnknown(t *testing.T) {
	sctx := &SSRContext{APIs: map[string]Handler{}}

	_, err := sctx.Call(context.Background(), "missing", &Request{})
	if err == nil {
		t.Fatal("expected error for unknown api name")
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the api, got %q", err.Error())
	}
}

func TestSSRContextCarrier(t *testing.T) {
	sctx := &SSRContext{APIs: map[string]Handler{}}
	ctx := WithSSRContext(context.Background(), sctx)

	if got := SSRContextFrom(ctx); got != sctx {
		t.Errorf("SSRContextFrom() = %p, want %p", got, sctx)
	}
	if got := SSRContextFrom(context.Background()); got != nil {
		t.Errorf("SSRContextFrom(empty) = %v, want nil", got)
	}
}

func TestFromHTTP(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/items?limit=5", strings.NewReader(`{"name":"x"}`))
	r.Header.Set("Content-Type", "application/json")

	req, err := FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP() error = %v", err)
	}
	if req.Method != "POST" {
		t.Errorf("method = %q, want POST", req.Method)
	}
	if req.URL != "/api/items?limit=5" {
		t.Errorf("url = %q, want /api/items?limit=5", req.URL)
	}
	if got := req.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}
	if string(req.Body) != `{"name":"x"}` {
		t.Errorf("body = %q", string(req.Body))
	}
}

func TestFromHTTP_HeaderIsolation(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Test", "original")

	req, err := FromHTTP(r)
	if err != nil {
		t.Fatalf("FromHTTP() error = %v", err)
	}
	req.Header.Set("X-Test", "mutated")

	if got := r.Header.Get("X-Test"); got != "original" {
		t.Errorf("source header mutated to %q", got)
	}
}

func TestResponseWrite(t *testing.T) {
	tests := []struct {
		name       string
		resp       *Response
		wantStatus int
		wantBody   string
		wantHeader map[string]string
	}{
		{
			name:       "explicit status and headers",
			resp:       Text(404, "not found"),
			wantStatus: 404,
			wantBody:   "not found",
			wantHeader: map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		},
		{
			name:       "zero status defaults to 200",
			resp:       &Response{Body: []byte("ok")},
			wantStatus: 200,
			wantBody:   "ok",
		},
		{
			name:       "html helper",
			resp:       HTML(200, "<h1>hi</h1>"),
			wantStatus: 200,
			wantBody:   "<h1>hi</h1>",
			wantHeader: map[string]string{"Content-Type": "text/html; charset=utf-8"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if err := tt.resp.Write(rec); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			for k, v := range tt.wantHeader {
				if got := rec.Header().Get(k); got != v {
					t.Errorf("header %s = %q, want %q", k, got, v)
				}
			}
		})
	}
}

func TestResponseWrite_MultiValueHeader(t *testing.T) {
	resp := &Response{
		Status: 200,
		Header: http.Header{"Set-Cookie": []string{"a=1", "b=2"}},
	}

	rec := httptest.NewRecorder()
	if err := resp.Write(rec); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := rec.Header().Values("Set-Cookie")
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Errorf("Set-Cookie values = %v", got)
	}
}

package api_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"quire/internal/api"
)

func TestNewClientEmptyBind(t *testing.T) {
	if _, err := api.NewClient("", ""); !errors.Is(err, api.ErrAPIUnavailable) {
		t.Fatalf("expected ErrAPIUnavailable, got %v", err)
	}
}

func TestClientConvertRoundTrip(t *testing.T) {
	var got api.Request
	var params api.ConvertParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.Unmarshal(got.Params, &params)
		resp, _ := api.Result(got.ID, base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")))
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "secret")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	out, err := client.Convert(context.Background(), []byte("doc"), "", "odt", "pdf", "cli")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if string(out) != "%PDF-1.7" {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Method != "convert" || got.JSONRPC != api.Version {
		t.Fatalf("unexpected request %#v", got)
	}
	if params.Data == nil || *params.Data != base64.StdEncoding.EncodeToString([]byte("doc")) {
		t.Fatalf("unexpected data param %#v", params.Data)
	}
	if params.Identifier != "" || params.ClientID != "cli" {
		t.Fatalf("unexpected params %#v", params)
	}
}

func TestClientReturnsRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(api.Failure(req.ID, api.NewError(api.CodeNoIdentifier, "wrong or no identifier")))
	}))
	defer srv.Close()

	client, err := api.NewClient(srv.URL, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Join(context.Background(), []string{"1"}, "odt", "pdf", "")
	var rpcErr *api.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != api.CodeNoIdentifier {
		t.Fatalf("expected NoIdentifier rpc error, got %v", err)
	}
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, _ := api.NewClient(srv.URL, "wrong")
	if _, err := client.Status(context.Background()); err == nil {
		t.Fatal("expected unauthorized error")
	}
}

func TestClientUploadRejectsUnalignedChunk(t *testing.T) {
	client, err := api.NewClient("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Upload(context.Background(), "", []byte("ab"), false); err == nil {
		t.Fatal("expected alignment error")
	}
}

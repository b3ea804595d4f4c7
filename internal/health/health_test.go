package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/catalogd/catalogd/internal/errs"
)

func TestCheckURL_ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	if err := CheckURL(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
}

func TestCheckURL_badStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := CheckURL(context.Background(), srv.URL)
	if errs.KindOf(err) != errs.Auth {
		t.Fatalf("err = %v, want auth kind", err)
	}
}

func TestCheckURL_unreachable(t *testing.T) {
	err := CheckURL(context.Background(), "http://127.0.0.1:1")
	if kind := errs.KindOf(err); kind != errs.Network && kind != errs.Timeout {
		t.Fatalf("err = %v, kind = %q", err, kind)
	}
}

func TestCheckURL_empty(t *testing.T) {
	if err := CheckURL(context.Background(), ""); errs.KindOf(err) != errs.NotFound {
		t.Fatalf("err = %v", err)
	}
}

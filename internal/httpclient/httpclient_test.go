package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestDefault_decodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "gzip, br" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("compressed guide data"))
		gz.Close()
	}))
	defer srv.Close()

	resp, err := Default().Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "compressed guide data" {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Errorf("Content-Encoding survived decoding: %q", resp.Header.Get("Content-Encoding"))
	}
}

func TestDefault_decodesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte("brotli guide data"))
		bw.Close()
	}))
	defer srv.Close()

	resp, err := Default().Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "brotli guide data" {
		t.Errorf("body = %q", body)
	}
}

func TestWithTimeout_sharesTransport(t *testing.T) {
	c := WithTimeout(EPGTimeout)
	if c.Timeout != EPGTimeout {
		t.Errorf("Timeout = %v", c.Timeout)
	}
	if c.Transport != Default().Transport {
		t.Error("WithTimeout must reuse the shared transport")
	}
}

package responsewriter

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWrap_Defaults(t *testing.T) {
	w := Wrap(httptest.NewRecorder())

	if w.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200 before any write", w.StatusCode())
	}
	if w.BytesWritten() != 0 {
		t.Errorf("BytesWritten = %d, want 0", w.BytesWritten())
	}
}

func TestWriteHeader_RecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := Wrap(rec)

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusOK) // absorbed

	if w.StatusCode() != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", w.StatusCode())
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("underlying status = %d, want 404", rec.Code)
	}
}

func TestWrite_CountsBytesAndImpliesOK(t *testing.T) {
	rec := httptest.NewRecorder()
	w := Wrap(rec)

	if _, err := w.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if w.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode = %d, want implicit 200", w.StatusCode())
	}
	if w.BytesWritten() != 11 {
		t.Errorf("BytesWritten = %d, want 11", w.BytesWritten())
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	w := Wrap(rec)
	if w.Unwrap() != http.ResponseWriter(rec) {
		t.Error("Unwrap should expose the underlying writer")
	}
}

package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestObjectKey(t *testing.T) {
	office := uuid.MustParse("6f1c1f0e-1111-4c2b-9b51-0a7f1e2d3c4b")
	key := ObjectKey(office, "contas", "Boleto Março/2026.pdf")

	prefix := "cartorios/" + office.String() + "/contas/"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("unexpected key %q", key)
	}
	if !strings.HasSuffix(key, "-2026.pdf") {
		t.Fatalf("filename not sanitized: %q", key)
	}
	if !BelongsTo(key, office) || BelongsTo(key, uuid.New()) {
		t.Fatalf("BelongsTo mismatch for %q", key)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"Escritura Pública.PDF": "escritura_publica.pdf",
		"../../etc/passwd":      "passwd",
		"   ":                   "arquivo",
		"çãõ":                   "cao",
	}
	for in, want := range cases {
		if got := sanitize(in, "arquivo"); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	pdf := []byte("%PDF-1.7\n%âãÏÓ\n1 0 obj\n")
	if got := DetectContentType(pdf, "application/octet-stream"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if got := DetectContentType([]byte("a;b\n1;2\n"), "text/csv"); got != "text/csv" {
		t.Fatalf("expected declared type, got %q", got)
	}
}

func TestS3UploaderSignsPut(t *testing.T) {
	body := []byte("%PDF-1.4 conteúdo")
	var gotPath, gotAuth, gotHash string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{
		Endpoint:   srv.URL,
		Region:     "sa-east-1",
		Bucket:     "documentos",
		AccessKey:  "AKIDEXAMPLE",
		SecretKey:  "segredo",
		PublicURL:  "https://cdn.cartorio.test/",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	up.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }

	res, err := up.Upload(context.Background(), UploadInput{Key: "cartorios/x/contas/a b.pdf", Body: body})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if gotPath != "/documentos/cartorios/x/contas/a b.pdf" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	sum := sha256.Sum256(body)
	if gotHash != hex.EncodeToString(sum[:]) || string(gotBody) != string(body) {
		t.Fatalf("payload hash or body mismatch")
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260504/sa-east-1/s3/aws4_request, SignedHeaders=content-type;host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if res.URL != "https://cdn.cartorio.test/cartorios/x/contas/a%20b.pdf" || res.ETag != "abc" || res.ContentType != "application/pdf" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestS3UploaderSignatureDependsOnSecret(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "https://s3.example.com/bucket/key.txt", nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sigV4{region: "us-east-1", accessKey: "A", secretKey: "one"}.sign(req, emptyBodySHA256, now)
	first := req.Header.Get("Authorization")
	sigV4{region: "us-east-1", accessKey: "A", secretKey: "one"}.sign(req, emptyBodySHA256, now)
	if req.Header.Get("Authorization") != first {
		t.Fatalf("signature must be deterministic")
	}
	sigV4{region: "us-east-1", accessKey: "A", secretKey: "two"}.sign(req, emptyBodySHA256, now)
	if req.Header.Get("Authorization") == first {
		t.Fatalf("signature must change with secret")
	}
}

func TestS3UploaderDeleteIgnoresMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	up, err := NewS3Uploader(S3Config{Endpoint: srv.URL, Region: "us-east-1", Bucket: "b", AccessKey: "a", SecretKey: "s", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := up.Delete(context.Background(), "cartorios/x/y.pdf"); err != nil {
		t.Fatalf("missing object must not fail: %v", err)
	}
}

func TestNewS3UploaderValidates(t *testing.T) {
	if _, err := NewS3Uploader(S3Config{Endpoint: "s3.local", Region: "r", Bucket: "b", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Fatalf("expected error for endpoint without scheme")
	}
	if _, err := NewS3Uploader(S3Config{Endpoint: "https://s3.local"}); err == nil || !strings.Contains(err.Error(), "S3_REGION") {
		t.Fatalf("expected missing region error, got %v", err)
	}
}

func TestNoopUploader(t *testing.T) {
	if _, err := (NoopUploader{}).Upload(context.Background(), UploadInput{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

package storage

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	sigAlgorithm    = "AWS4-HMAC-SHA256"
	sigService      = "s3"
	amzDateLayout   = "20060102T150405Z"
	shortDateLayout = "20060102"
	emptyBodySHA256 = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// S3Config aponta para um bucket compatível com S3 (AWS, MinIO ou Supabase Storage).
type S3Config struct {
	Endpoint   string
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	PublicURL  string
	HTTPClient *http.Client
}

// S3Uploader grava objetos com requisições assinadas SigV4, em path-style.
type S3Uploader struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

// NewS3Uploader valida a configuração e cria o uploader.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &S3Uploader{cfg: cfg, client: client, now: time.Now}, nil
}

// Upload envia o objeto com PUT e devolve a URL pública quando configurada.
func (u *S3Uploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	key := strings.TrimLeft(strings.TrimSpace(input.Key), "/")
	if key == "" {
		return nil, errors.New("storage: chave do objeto obrigatória")
	}
	if len(input.Body) == 0 {
		return nil, errors.New("storage: arquivo vazio")
	}

	contentType := DetectContentType(input.Body, input.ContentType)
	sum := sha256.Sum256(input.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.objectURL(key), bytes.NewReader(input.Body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(input.Body))
	req.Header.Set("Content-Type", contentType)
	if cc := strings.TrimSpace(input.CacheControl); cc != "" {
		req.Header.Set("Cache-Control", cc)
	}

	resp, err := u.do(req, hex.EncodeToString(sum[:]))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "upload"); err != nil {
		return nil, err
	}

	return &UploadResult{
		Key:         key,
		URL:         u.PublicURL(key),
		ETag:        strings.Trim(resp.Header.Get("ETag"), `"`),
		Size:        int64(len(input.Body)),
		ContentType: contentType,
	}, nil
}

// Delete remove o objeto; objeto inexistente não é erro.
func (u *S3Uploader) Delete(ctx context.Context, key string) error {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return errors.New("storage: chave do objeto obrigatória")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u.objectURL(key), nil)
	if err != nil {
		return err
	}

	resp, err := u.do(req, emptyBodySHA256)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus(resp, "remoção")
}

// PublicURL devolve a URL de leitura do objeto.
func (u *S3Uploader) PublicURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if u.cfg.PublicURL != "" {
		return u.cfg.PublicURL + "/" + escaped
	}
	return u.objectURL(key)
}

func (u *S3Uploader) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", u.cfg.Endpoint, u.cfg.Bucket, (&url.URL{Path: key}).EscapedPath())
}

func (u *S3Uploader) do(req *http.Request, payloadHash string) (*http.Response, error) {
	signer := sigV4{region: u.cfg.Region, accessKey: u.cfg.AccessKey, secretKey: u.cfg.SecretKey}
	signer.sign(req, payloadHash, u.now().UTC())

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("storage: %s falhou (%d): %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}

func (cfg S3Config) validate() error {
	required := []struct{ value, name string }{
		{cfg.Endpoint, "S3_ENDPOINT"},
		{cfg.Region, "S3_REGION"},
		{cfg.Bucket, "S3_BUCKET"},
		{cfg.AccessKey, "S3_ACCESS_KEY"},
		{cfg.SecretKey, "S3_SECRET_KEY"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("storage: %s ausente", r.name)
		}
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return errors.New("storage: S3_ENDPOINT deve incluir http:// ou https://")
	}
	return nil
}

// sigV4 assina requisições S3 com cabeçalhos (não presigned).
type sigV4 struct {
	region    string
	accessKey string
	secretKey string
}

func (s sigV4) sign(req *http.Request, payloadHash string, now time.Time) {
	amzDate := now.Format(amzDateLayout)
	scope := strings.Join([]string{now.Format(shortDateLayout), s.region, sigService, "aws4_request"}, "/")

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	headers, signed := s.canonicalHeaders(req)
	canonical := strings.Join([]string{
		req.Method,
		encodePath(req.URL.EscapedPath()),
		canonicalQuery(req.URL.Query()),
		headers,
		signed,
		payloadHash,
	}, "\n")

	digest := sha256.Sum256([]byte(canonical))
	toSign := strings.Join([]string{sigAlgorithm, amzDate, scope, hex.EncodeToString(digest[:])}, "\n")

	key := hmacSHA256([]byte("AWS4"+s.secretKey), []byte(now.Format(shortDateLayout)))
	for _, part := range []string{s.region, sigService, "aws4_request"} {
		key = hmacSHA256(key, []byte(part))
	}
	signature := hex.EncodeToString(hmacSHA256(key, []byte(toSign)))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigAlgorithm, s.accessKey, scope, signed, signature))
}

// canonicalHeaders assina host, content-type e todos os x-amz-*.
func (s sigV4) canonicalHeaders(req *http.Request) (string, string) {
	values := map[string]string{"host": req.URL.Host}
	if req.Host != "" {
		values["host"] = req.Host
	}
	for name, vals := range req.Header {
		lower := strings.ToLower(name)
		if lower != "content-type" && lower != "content-md5" && !strings.HasPrefix(lower, "x-amz-") {
			continue
		}
		trimmed := make([]string, len(vals))
		for i, v := range vals {
			trimmed[i] = strings.Join(strings.Fields(v), " ")
		}
		values[lower] = strings.Join(trimmed, ",")
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(values[name])
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

// encodePath reaplica a codificação SigV4 sobre o caminho já escapado.
func encodePath(escaped string) string {
	if escaped == "" {
		return "/"
	}
	raw, err := url.PathUnescape(escaped)
	if err != nil {
		raw = escaped
	}
	segments := strings.Split(raw, "/")
	for i, seg := range segments {
		segments[i] = uriEncode(seg)
	}
	return strings.Join(segments, "/")
}

func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), values[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') || strings.IndexByte("-_.~", c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteString("%" + strings.ToUpper(strconv.FormatInt(int64(c)|0x100, 16)[1:]))
	}
	return b.String()
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// Package storage guarda anexos e arquivos enviados pelos cartórios.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// ErrNotConfigured indica que nenhum backend de arquivos foi configurado.
var ErrNotConfigured = errors.New("storage: uploader não configurado")

// UploadInput representa um objeto a ser gravado.
type UploadInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// UploadResult descreve o objeto persistido.
type UploadResult struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ETag        string `json:"etag,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Uploader grava e remove objetos.
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey monta a chave cartorios/<id>/<area>/<uuid>-<nome>.
func ObjectKey(cartorioID uuid.UUID, area, filename string) string {
	return path.Join("cartorios", cartorioID.String(), sanitize(area, "geral"), uuid.NewString()+"-"+sanitize(filename, "arquivo"))
}

// BelongsTo informa se key pertence ao cartório.
func BelongsTo(key string, cartorioID uuid.UUID) bool {
	return strings.HasPrefix(strings.TrimLeft(key, "/"), fmt.Sprintf("cartorios/%s/", cartorioID))
}

// DetectContentType prefere o tipo real do conteúdo ao declarado pelo cliente.
func DetectContentType(body []byte, declared string) string {
	detected := mimetype.Detect(body)
	if detected.Is("application/octet-stream") || detected.Is("text/plain") {
		if declared = strings.TrimSpace(declared); declared != "" {
			return declared
		}
	}
	return detected.String()
}

// sanitize remove acentos e caracteres que quebram URLs.
func sanitize(name, fallback string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
		case r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallback
	}
	if len(out) > 120 {
		out = out[len(out)-120:]
	}
	return out
}

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrFileMissing indica formulário sem o campo de arquivo esperado.
var ErrFileMissing = errors.New("arquivo ausente")

// File é um arquivo recebido via multipart e já lido em memória.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// ReadMultipartFile lê o primeiro arquivo de field respeitando limit bytes.
func ReadMultipartFile(r *http.Request, field string, limit int64) (*File, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, fmt.Errorf("dados multipart inválidos: %w", err)
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil, ErrFileMissing
	}
	header := r.MultipartForm.File[field][0]

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("falha ao abrir arquivo: %w", err)
	}
	defer src.Close()

	buf := bytes.NewBuffer(nil)
	n, err := io.Copy(buf, io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("falha ao ler arquivo: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("arquivo excede %d bytes", limit)
	}
	if n == 0 {
		return nil, errors.New("arquivo vazio")
	}

	return &File{
		Name:        strings.TrimSpace(header.Filename),
		ContentType: DetectContentType(buf.Bytes(), header.Header.Get("Content-Type")),
		Body:        buf.Bytes(),
	}, nil
}

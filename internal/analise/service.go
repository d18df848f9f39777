package analise

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartorio-digital/backoffice/internal/storage"
)

const (
	storageArea  = "analises"
	callbackPath = "/webhooks/n8n/analises"
	secretHeader = "X-Webhook-Secret"
)

type store interface {
	Create(ctx context.Context, input CreateInput) (*Analise, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Analise, error)
	List(ctx context.Context, filter Filter) ([]Analise, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, resultado []byte, erro *string) (*Analise, error)
}

// Service orquestra envio de documentos ao n8n e o retorno do fluxo.
type Service struct {
	repo          store
	files         storage.Uploader
	dispatcher    Dispatcher
	secret        string
	publicBaseURL string
	validate      *validator.Validate
	logger        zerolog.Logger
}

// Options agrupa as dependências opcionais do serviço.
type Options struct {
	Files         storage.Uploader
	Dispatcher    Dispatcher
	WebhookSecret string
	PublicBaseURL string
	Logger        zerolog.Logger
}

func NewService(repo store, opts Options) *Service {
	files := opts.Files
	if files == nil {
		files = storage.NoopUploader{}
	}
	return &Service{
		repo:          repo,
		files:         files,
		dispatcher:    opts.Dispatcher,
		secret:        opts.WebhookSecret,
		publicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		validate:      validator.New(),
		logger:        opts.Logger,
	}
}

// SubmitInput descreve o documento enviado pelo usuário.
type SubmitInput struct {
	CartorioID    uuid.UUID
	ProtocoloID   *uuid.UUID
	Tipo          string
	SolicitadoPor uuid.UUID
	File          *storage.File
}

// Submit guarda o arquivo, registra a análise e dispara o webhook.
// Falha no webhook não desfaz o registro: a análise fica com status erro.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (*Analise, error) {
	if _, ok := s.files.(storage.NoopUploader); ok {
		return nil, ErrStorageDisabled
	}
	if s.dispatcher == nil {
		return nil, ErrWebhookDisabled
	}
	if input.File == nil {
		return nil, storage.ErrFileMissing
	}

	tipo := strings.ToLower(strings.TrimSpace(input.Tipo))
	if tipo == "" {
		tipo = "generica"
	}

	uploaded, err := s.files.Upload(ctx, storage.UploadInput{
		Key:          storage.ObjectKey(input.CartorioID, storageArea, input.File.Name),
		Body:         input.File.Body,
		ContentType:  input.File.ContentType,
		CacheControl: "private, max-age=86400",
	})
	if err != nil {
		return nil, err
	}

	create := CreateInput{
		CartorioID:    input.CartorioID,
		ProtocoloID:   input.ProtocoloID,
		Tipo:          tipo,
		NomeArquivo:   input.File.Name,
		ArquivoURL:    uploaded.URL,
		ObjectKey:     uploaded.Key,
		SolicitadoPor: input.SolicitadoPor,
	}
	if err := s.validate.Struct(create); err != nil {
		s.removeObject(ctx, uploaded.Key)
		return nil, err
	}

	a, err := s.repo.Create(ctx, create)
	if err != nil {
		s.removeObject(ctx, uploaded.Key)
		return nil, err
	}

	dispatchErr := s.dispatcher.Dispatch(ctx, WebhookPayload{
		AnaliseID:   a.ID,
		CartorioID:  a.CartorioID,
		ProtocoloID: a.ProtocoloID,
		Tipo:        a.Tipo,
		NomeArquivo: a.NomeArquivo,
		ArquivoURL:  a.ArquivoURL,
		CallbackURL: s.publicBaseURL + callbackPath,
	})

	status := StatusEnviado
	var erro *string
	if dispatchErr != nil {
		s.logger.Warn().Err(dispatchErr).Str("analise_id", a.ID.String()).Msg("falha ao acionar n8n")
		status = StatusErro
		msg := dispatchErr.Error()
		erro = &msg
	}

	updated, err := s.repo.SetStatus(ctx, a.ID, status, nil, erro)
	if errors.Is(err, ErrFinished) {
		// o callback do n8n chegou antes da marcação de envio
		if current, getErr := s.repo.Get(ctx, a.CartorioID, a.ID); getErr == nil {
			return current, nil
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("analise_id", a.ID.String()).Msg("falha ao atualizar status da análise")
		a.Status = status
		a.Erro = erro
		return a, nil
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Analise, error) {
	return s.repo.Get(ctx, cartorioID, id)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]Analise, error) {
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	return s.repo.List(ctx, filter)
}

// VerifySecret compara o segredo recebido em tempo constante.
func (s *Service) VerifySecret(provided string) bool {
	if s.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.secret)) == 1
}

// Callback aplica o resultado devolvido pelo n8n.
func (s *Service) Callback(ctx context.Context, secret string, input CallbackInput) (*Analise, error) {
	if !s.VerifySecret(secret) {
		return nil, ErrInvalidSecret
	}
	input.Status = strings.ToLower(strings.TrimSpace(input.Status))
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	var erro *string
	var resultado []byte
	switch input.Status {
	case StatusConcluido:
		resultado = input.Resultado
	case StatusErro:
		msg := strings.TrimSpace(input.Erro)
		if msg == "" {
			msg = "análise falhou no n8n"
		}
		erro = &msg
	}
	return s.repo.SetStatus(ctx, input.AnaliseID, input.Status, resultado, erro)
}

func (s *Service) removeObject(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Warn().Err(err).Str("key", key).Msg("falha ao remover arquivo órfão")
	}
}

package contas

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartorio-digital/backoffice/internal/storage"
)

const storageArea = "contas"

type store interface {
	Create(ctx context.Context, input CreateInput) (*Conta, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Conta, error)
	List(ctx context.Context, filter Filter) ([]Conta, error)
	Update(ctx context.Context, input UpdateInput) (*Conta, error)
	MarkPaid(ctx context.Context, cartorioID, id uuid.UUID, formaPagamento *string) (*Conta, error)
	Delete(ctx context.Context, cartorioID, id uuid.UUID) ([]string, error)
	Summary(ctx context.Context, filter Filter) (*Resumo, error)
	AddAnexo(ctx context.Context, input AnexoInput) (*Anexo, error)
	ListAnexos(ctx context.Context, contaIDs []uuid.UUID) (map[uuid.UUID][]Anexo, error)
	DeleteAnexo(ctx context.Context, cartorioID, contaID, anexoID uuid.UUID) (string, error)
}

// Service concentra as regras de contas a pagar.
type Service struct {
	repo     store
	files    storage.Uploader
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo store, files storage.Uploader, logger zerolog.Logger) *Service {
	if files == nil {
		files = storage.NoopUploader{}
	}
	return &Service{repo: repo, files: files, validate: validator.New(), logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Conta, error) {
	input.Fornecedor = strings.TrimSpace(input.Fornecedor)
	input.Descricao = strings.TrimSpace(input.Descricao)
	input.Categoria = strings.ToLower(strings.TrimSpace(input.Categoria))
	input.Valor = Round2(input.Valor)
	input.FormaPagamento = trimOptional(input.FormaPagamento)
	input.Observacoes = trimOptional(input.Observacoes)

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	c, err := s.repo.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.decorate(c), nil
}

// List devolve contas com anexos e situação calculada.
func (s *Service) List(ctx context.Context, filter Filter) ([]Conta, error) {
	filter.Situacao = strings.ToLower(strings.TrimSpace(filter.Situacao))
	if filter.Situacao != "" && !isValidSituacao(filter.Situacao) {
		return nil, ErrInvalidSituacao
	}
	filter.Hoje = s.now()

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	anexos, err := s.repo.ListAnexos(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if list, ok := anexos[items[i].ID]; ok {
			items[i].Anexos = list
		}
		s.decorate(&items[i])
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Conta, error) {
	c, err := s.repo.Get(ctx, cartorioID, id)
	if err != nil {
		return nil, err
	}
	anexos, err := s.repo.ListAnexos(ctx, []uuid.UUID{c.ID})
	if err != nil {
		return nil, err
	}
	if list, ok := anexos[c.ID]; ok {
		c.Anexos = list
	}
	return s.decorate(c), nil
}

func (s *Service) Update(ctx context.Context, input UpdateInput) (*Conta, error) {
	input.Fornecedor = trimOptional(input.Fornecedor)
	input.Descricao = trimOptional(input.Descricao)
	if input.Categoria != nil {
		v := strings.ToLower(strings.TrimSpace(*input.Categoria))
		input.Categoria = &v
	}
	if input.Valor != nil {
		v := Round2(*input.Valor)
		input.Valor = &v
	}

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	c, err := s.repo.Update(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.decorate(c), nil
}

// Pay registra o pagamento com a data atual.
func (s *Service) Pay(ctx context.Context, cartorioID, id uuid.UUID, formaPagamento *string) (*Conta, error) {
	c, err := s.repo.MarkPaid(ctx, cartorioID, id, trimOptional(formaPagamento))
	if err != nil {
		return nil, err
	}
	return s.decorate(c), nil
}

// Delete remove a conta; falha ao apagar arquivos só é registrada em log.
func (s *Service) Delete(ctx context.Context, cartorioID, id uuid.UUID) error {
	keys, err := s.repo.Delete(ctx, cartorioID, id)
	if err != nil {
		return err
	}
	for _, key := range keys {
		s.removeObject(ctx, key)
	}
	return nil
}

// Attach envia o arquivo ao storage e registra o anexo.
func (s *Service) Attach(ctx context.Context, cartorioID, contaID, userID uuid.UUID, file *storage.File) (*Anexo, error) {
	if _, ok := s.files.(storage.NoopUploader); ok {
		return nil, ErrStorageDisabled
	}
	if _, err := s.repo.Get(ctx, cartorioID, contaID); err != nil {
		return nil, err
	}

	key := storage.ObjectKey(cartorioID, storageArea, file.Name)
	uploaded, err := s.files.Upload(ctx, storage.UploadInput{
		Key:          key,
		Body:         file.Body,
		ContentType:  file.ContentType,
		CacheControl: "private, max-age=31536000",
	})
	if err != nil {
		return nil, err
	}

	anexo, err := s.repo.AddAnexo(ctx, AnexoInput{
		CartorioID:  cartorioID,
		ContaID:     contaID,
		Nome:        file.Name,
		URL:         uploaded.URL,
		ObjectKey:   uploaded.Key,
		ContentType: uploaded.ContentType,
		Tamanho:     uploaded.Size,
		EnviadoPor:  userID,
	})
	if err != nil {
		s.removeObject(ctx, uploaded.Key)
		return nil, err
	}
	return anexo, nil
}

func (s *Service) RemoveAnexo(ctx context.Context, cartorioID, contaID, anexoID uuid.UUID) error {
	key, err := s.repo.DeleteAnexo(ctx, cartorioID, contaID, anexoID)
	if err != nil {
		return err
	}
	s.removeObject(ctx, key)
	return nil
}

// Summary totaliza contas pendentes, pagas e vencidas.
func (s *Service) Summary(ctx context.Context, filter Filter) (*Resumo, error) {
	filter.Hoje = s.now()
	res, err := s.repo.Summary(ctx, filter)
	if err != nil {
		return nil, err
	}
	res.Pendente.Valor = Round2(res.Pendente.Valor)
	res.Paga.Valor = Round2(res.Paga.Valor)
	res.Vencida.Valor = Round2(res.Vencida.Valor)
	return res, nil
}

func (s *Service) decorate(c *Conta) *Conta {
	c.Valor = Round2(c.Valor)
	c.Situacao = SituacaoEm(*c, s.now())
	if c.Anexos == nil {
		c.Anexos = []Anexo{}
	}
	return c
}

func (s *Service) removeObject(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.files.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		s.logger.Warn().Err(err).Str("object_key", key).Msg("contas: não foi possível remover arquivo")
	}
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

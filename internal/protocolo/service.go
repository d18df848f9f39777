package protocolo

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cartorio-digital/backoffice/internal/documento"
)

type store interface {
	Create(ctx context.Context, input CreateInput, ano int) (*Protocolo, error)
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Protocolo, error)
	List(ctx context.Context, filter Filter) ([]Protocolo, error)
	Update(ctx context.Context, input UpdateInput) (*Protocolo, error)
	AddAndamento(ctx context.Context, input AndamentoInput) (*Andamento, error)
	ListAndamentos(ctx context.Context, cartorioID, protocoloID uuid.UUID) ([]Andamento, error)
}

// Service aplica as regras de abertura e tramitação de protocolos.
type Service struct {
	repo     store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo store) *Service {
	return &Service{repo: repo, validate: validator.New(), now: time.Now}
}

// Create abre o protocolo com número sequencial do ano corrente.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Protocolo, error) {
	input.Tipo = strings.TrimSpace(input.Tipo)
	input.Assunto = strings.TrimSpace(input.Assunto)
	input.Apresentante = strings.TrimSpace(input.Apresentante)
	input.Prioridade = NormalizePrioridade(input.Prioridade)

	if input.Documento != nil {
		raw := strings.TrimSpace(*input.Documento)
		if raw == "" {
			input.Documento = nil
		} else {
			doc, _, err := documento.Normalize(raw)
			if err != nil {
				return nil, err
			}
			input.Documento = &doc
		}
	}

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, input, s.now().Year())
}

// List lista protocolos do cartório; status desconhecidos são ignorados.
func (s *Service) List(ctx context.Context, filter Filter) ([]Protocolo, error) {
	if len(filter.Status) > 0 {
		normalized := make([]string, 0, len(filter.Status))
		for _, status := range filter.Status {
			status = strings.ToLower(strings.TrimSpace(status))
			if IsValidStatus(status) {
				normalized = append(normalized, status)
			}
		}
		filter.Status = normalized
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Protocolo, error) {
	return s.repo.Get(ctx, cartorioID, id)
}

// Update troca status, prioridade ou responsável.
// Status de encerramento marcam concluido_em; os demais o limpam.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*Protocolo, error) {
	if input.Status != nil {
		status := NormalizeStatus(*input.Status)
		if !IsValidStatus(status) {
			return nil, ErrInvalidStatus
		}
		input.Status = &status

		if IsClosing(status) {
			now := s.now()
			input.ConcluidoEm = &now
		} else {
			input.ConcluidoEm = nil
			input.ReabrirConclusao = true
		}
	}
	if input.Prioridade != nil {
		p := NormalizePrioridade(*input.Prioridade)
		if !IsValidPrioridade(p) {
			return nil, ErrInvalidPrioridade
		}
		input.Prioridade = &p
	}
	input.Observacao = strings.TrimSpace(input.Observacao)

	return s.repo.Update(ctx, input)
}

func (s *Service) AddAndamento(ctx context.Context, input AndamentoInput) (*Andamento, error) {
	input.Descricao = strings.TrimSpace(input.Descricao)
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	return s.repo.AddAndamento(ctx, input)
}

func (s *Service) ListAndamentos(ctx context.Context, cartorioID, protocoloID uuid.UUID) ([]Andamento, error) {
	if _, err := s.repo.Get(ctx, cartorioID, protocoloID); err != nil {
		return nil, err
	}
	return s.repo.ListAndamentos(ctx, cartorioID, protocoloID)
}

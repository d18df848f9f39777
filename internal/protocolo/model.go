package protocolo

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("protocolo não encontrado")
	ErrInvalidStatus     = errors.New("status inválido")
	ErrInvalidPrioridade = errors.New("prioridade inválida")
	ErrClosed            = errors.New("protocolo encerrado não aceita andamentos")
)

const (
	StatusAberto      = "aberto"
	StatusEmAndamento = "em_andamento"
	StatusExigencia   = "exigencia"
	StatusConcluido   = "concluido"
	StatusCancelado   = "cancelado"

	PrioridadeBaixa   = "baixa"
	PrioridadeNormal  = "normal"
	PrioridadeAlta    = "alta"
	PrioridadeUrgente = "urgente"
)

var (
	validStatuses = map[string]struct{}{
		StatusAberto:      {},
		StatusEmAndamento: {},
		StatusExigencia:   {},
		StatusConcluido:   {},
		StatusCancelado:   {},
	}
	validPrioridades = map[string]struct{}{
		PrioridadeBaixa:   {},
		PrioridadeNormal:  {},
		PrioridadeAlta:    {},
		PrioridadeUrgente: {},
	}
)

// Protocolo acompanha um pedido apresentado ao cartório até a conclusão.
type Protocolo struct {
	ID            uuid.UUID  `json:"id"`
	CartorioID    uuid.UUID  `json:"cartorio_id"`
	Numero        string     `json:"numero"`
	Tipo          string     `json:"tipo"`
	Assunto       string     `json:"assunto"`
	Apresentante  string     `json:"apresentante"`
	Documento     *string    `json:"documento,omitempty"`
	Status        string     `json:"status"`
	Prioridade    string     `json:"prioridade"`
	Prazo         *time.Time `json:"prazo,omitempty"`
	ResponsavelID *uuid.UUID `json:"responsavel_id,omitempty"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ConcluidoEm   *time.Time `json:"concluido_em,omitempty"`
}

// Andamento registra uma movimentação do protocolo.
type Andamento struct {
	ID             uuid.UUID `json:"id"`
	ProtocoloID    uuid.UUID `json:"protocolo_id"`
	AutorID        uuid.UUID `json:"autor_id"`
	Descricao      string    `json:"descricao"`
	StatusAnterior *string   `json:"status_anterior,omitempty"`
	StatusNovo     *string   `json:"status_novo,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateInput abre um protocolo.
type CreateInput struct {
	CartorioID    uuid.UUID  `validate:"required"`
	Tipo          string     `validate:"required,max=60"`
	Assunto       string     `validate:"required,max=200"`
	Apresentante  string     `validate:"required,max=200"`
	Documento     *string    `validate:"omitempty"`
	Prioridade    string     `validate:"omitempty,oneof=baixa normal alta urgente"`
	Prazo         *time.Time `validate:"omitempty"`
	ResponsavelID *uuid.UUID `validate:"omitempty"`
	CreatedBy     uuid.UUID  `validate:"required"`
}

// UpdateInput altera status, prioridade ou responsável.
type UpdateInput struct {
	CartorioID       uuid.UUID
	ID               uuid.UUID
	AutorID          uuid.UUID
	Status           *string
	Prioridade       *string
	ResponsavelID    *uuid.UUID
	ClearResponsavel bool
	Prazo            *time.Time
	Observacao       string
	ConcluidoEm      *time.Time
	ReabrirConclusao bool
}

// AndamentoInput adiciona uma movimentação sem troca de status.
type AndamentoInput struct {
	CartorioID  uuid.UUID `validate:"required"`
	ProtocoloID uuid.UUID `validate:"required"`
	AutorID     uuid.UUID `validate:"required"`
	Descricao   string    `validate:"required,max=2000"`
}

// Filter restringe a listagem ao cartório e, opcionalmente, a status.
type Filter struct {
	CartorioID uuid.UUID
	Status     []string
	Busca      string
	Limit      int
	Offset     int
}

// FormatNumero monta o número AAAA-NNNNNN.
func FormatNumero(ano, seq int) string {
	return fmt.Sprintf("%04d-%06d", ano, seq)
}

// NormalizeStatus padroniza status; vazio vira aberto.
func NormalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return StatusAberto
	}
	return status
}

// NormalizePrioridade padroniza prioridade; vazio vira normal.
func NormalizePrioridade(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return PrioridadeNormal
	}
	return p
}

func IsValidStatus(status string) bool {
	_, ok := validStatuses[status]
	return ok
}

func IsValidPrioridade(p string) bool {
	_, ok := validPrioridades[p]
	return ok
}

// IsClosing indica status que encerram o protocolo.
func IsClosing(status string) bool {
	return status == StatusConcluido || status == StatusCancelado
}

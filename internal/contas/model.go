package contas

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("conta não encontrada")
	ErrAnexoNotFound   = errors.New("anexo não encontrado")
	ErrAlreadyPaid     = errors.New("conta já está paga")
	ErrInvalidSituacao = errors.New("situação inválida")
	ErrStorageDisabled = errors.New("armazenamento de arquivos indisponível")
)

const dateLayout = "2006-01-02"

// Situações calculadas a partir de pago e vencimento.
const (
	SituacaoPendente = "pendente"
	SituacaoPaga     = "paga"
	SituacaoVencida  = "vencida"
)

// Conta é um lançamento de contas a pagar do cartório.
type Conta struct {
	ID             uuid.UUID  `json:"id"`
	CartorioID     uuid.UUID  `json:"cartorio_id"`
	Fornecedor     string     `json:"fornecedor"`
	Descricao      string     `json:"descricao"`
	Categoria      string     `json:"categoria"`
	Valor          float64    `json:"valor"`
	Vencimento     time.Time  `json:"vencimento"`
	Pago           bool       `json:"pago"`
	PagoEm         *time.Time `json:"pago_em,omitempty"`
	FormaPagamento *string    `json:"forma_pagamento,omitempty"`
	Observacoes    *string    `json:"observacoes,omitempty"`
	Situacao       string     `json:"situacao"`
	Anexos         []Anexo    `json:"anexos"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Anexo é um arquivo (boleto, nota, comprovante) ligado à conta.
type Anexo struct {
	ID          uuid.UUID `json:"id"`
	ContaID     uuid.UUID `json:"conta_id"`
	Nome        string    `json:"nome"`
	URL         string    `json:"url"`
	ObjectKey   string    `json:"-"`
	ContentType string    `json:"content_type"`
	Tamanho     int64     `json:"tamanho"`
	EnviadoPor  uuid.UUID `json:"enviado_por"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateInput struct {
	CartorioID     uuid.UUID `validate:"required"`
	Fornecedor     string    `validate:"required,max=200"`
	Descricao      string    `validate:"required,max=500"`
	Categoria      string    `validate:"required,max=60"`
	Valor          float64   `validate:"gt=0"`
	Vencimento     time.Time `validate:"required"`
	FormaPagamento *string   `validate:"omitempty,max=40"`
	Observacoes    *string   `validate:"omitempty,max=2000"`
	CreatedBy      uuid.UUID `validate:"required"`
}

// UpdateInput altera apenas os campos informados.
type UpdateInput struct {
	CartorioID     uuid.UUID
	ID             uuid.UUID
	Fornecedor     *string    `validate:"omitempty,min=1,max=200"`
	Descricao      *string    `validate:"omitempty,min=1,max=500"`
	Categoria      *string    `validate:"omitempty,min=1,max=60"`
	Valor          *float64   `validate:"omitempty,gt=0"`
	Vencimento     *time.Time `validate:"omitempty"`
	FormaPagamento *string    `validate:"omitempty,max=40"`
	Observacoes    *string    `validate:"omitempty,max=2000"`
}

type AnexoInput struct {
	CartorioID  uuid.UUID
	ContaID     uuid.UUID
	Nome        string
	URL         string
	ObjectKey   string
	ContentType string
	Tamanho     int64
	EnviadoPor  uuid.UUID
}

// Filter lista contas do cartório por situação e período de vencimento.
type Filter struct {
	CartorioID uuid.UUID
	Situacao   string
	De         *time.Time
	Ate        *time.Time
	Hoje       time.Time
	Limit      int
	Offset     int
}

// Totais agrega quantidade e valor.
type Totais struct {
	Quantidade int     `json:"quantidade"`
	Valor      float64 `json:"valor"`
}

// Resumo consolida as contas do cartório.
type Resumo struct {
	Pendente Totais `json:"pendente"`
	Paga     Totais `json:"paga"`
	Vencida  Totais `json:"vencida"`
}

// Round2 arredonda valores monetários para centavos.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SituacaoEm calcula a situação da conta na data hoje.
func SituacaoEm(c Conta, hoje time.Time) string {
	if c.Pago {
		return SituacaoPaga
	}
	if c.Vencimento.Format(dateLayout) < hoje.Format(dateLayout) {
		return SituacaoVencida
	}
	return SituacaoPendente
}

func isValidSituacao(s string) bool {
	return s == SituacaoPendente || s == SituacaoPaga || s == SituacaoVencida
}

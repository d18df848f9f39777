package cartorio

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("cartório não encontrado")
	ErrInvalidPapel = errors.New("papel inválido")
)

const (
	PapelTitular    = "titular"
	PapelSubstituto = "substituto"
	PapelEscrevente = "escrevente"
	PapelAuxiliar   = "auxiliar"
)

var validPapeis = map[string]struct{}{
	PapelTitular:    {},
	PapelSubstituto: {},
	PapelEscrevente: {},
	PapelAuxiliar:   {},
}

// Cartorio representa a serventia (tenant) em nome da qual as operações são feitas.
type Cartorio struct {
	ID             uuid.UUID `json:"id"`
	Nome           string    `json:"nome"`
	CNS            string    `json:"cns"`
	CPFResponsavel string    `json:"cpf_responsavel"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Membro vincula um usuário do serviço de identidade ao cartório.
type Membro struct {
	UsuarioID  uuid.UUID `json:"usuario_id"`
	CartorioID uuid.UUID `json:"cartorio_id"`
	Papel      string    `json:"papel"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateCartorioInput contém os campos necessários para registrar um cartório.
type CreateCartorioInput struct {
	Nome           string `validate:"required,min=3"`
	CNS            string `validate:"required,numeric,len=6"`
	CPFResponsavel string `validate:"required,numeric,len=11"`
}

// AddMembroInput vincula usuário a cartório.
type AddMembroInput struct {
	UsuarioID  uuid.UUID `validate:"required"`
	CartorioID uuid.UUID `validate:"required"`
	Papel      string    `validate:"required"`
}

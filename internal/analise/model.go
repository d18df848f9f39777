package analise

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("análise não encontrada")
	ErrProtocoloNotFound = errors.New("protocolo não encontrado no cartório")
	ErrFinished          = errors.New("análise já finalizada")
	ErrInvalidSecret     = errors.New("segredo do webhook inválido")
	ErrStorageDisabled   = errors.New("armazenamento de arquivos indisponível")
	ErrWebhookDisabled   = errors.New("webhook de análise não configurado")
)

const (
	StatusPendente  = "pendente"
	StatusEnviado   = "enviado"
	StatusConcluido = "concluido"
	StatusErro      = "erro"
)

// Analise acompanha um documento enviado para análise automatizada no n8n.
type Analise struct {
	ID            uuid.UUID       `json:"id"`
	CartorioID    uuid.UUID       `json:"cartorio_id"`
	ProtocoloID   *uuid.UUID      `json:"protocolo_id,omitempty"`
	Tipo          string          `json:"tipo"`
	NomeArquivo   string          `json:"nome_arquivo"`
	ArquivoURL    string          `json:"arquivo_url"`
	ObjectKey     string          `json:"-"`
	Status        string          `json:"status"`
	Resultado     json.RawMessage `json:"resultado,omitempty"`
	Erro          *string         `json:"erro,omitempty"`
	SolicitadoPor uuid.UUID       `json:"solicitado_por"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CreateInput registra a análise antes do envio ao webhook.
type CreateInput struct {
	CartorioID    uuid.UUID  `validate:"required"`
	ProtocoloID   *uuid.UUID `validate:"omitempty"`
	Tipo          string     `validate:"required,max=60"`
	NomeArquivo   string     `validate:"required"`
	ArquivoURL    string     `validate:"required,url"`
	ObjectKey     string     `validate:"required"`
	SolicitadoPor uuid.UUID  `validate:"required"`
}

// CallbackInput é o corpo enviado pelo n8n ao concluir o fluxo.
type CallbackInput struct {
	AnaliseID uuid.UUID       `json:"analise_id" validate:"required"`
	Status    string          `json:"status" validate:"required,oneof=concluido erro"`
	Resultado json.RawMessage `json:"resultado"`
	Erro      string          `json:"erro"`
}

// Filter lista análises do cartório.
type Filter struct {
	CartorioID  uuid.UUID
	ProtocoloID *uuid.UUID
	Status      string
	Limit       int
	Offset      int
}

// WebhookPayload é o que o fluxo do n8n recebe.
type WebhookPayload struct {
	AnaliseID   uuid.UUID  `json:"analise_id"`
	CartorioID  uuid.UUID  `json:"cartorio_id"`
	ProtocoloID *uuid.UUID `json:"protocolo_id,omitempty"`
	Tipo        string     `json:"tipo"`
	NomeArquivo string     `json:"nome_arquivo"`
	ArquivoURL  string     `json:"arquivo_url"`
	CallbackURL string     `json:"callback_url"`
}

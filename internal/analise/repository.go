package analise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const analiseColumns = `id, cartorio_id, protocolo_id, tipo, nome_arquivo, arquivo_url, object_key, status, resultado, erro, solicitado_por, created_at, updated_at`

// Repository persiste as análises documentais.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (*Analise, error) {
	// protocolo_id, quando informado, precisa pertencer ao mesmo cartório.
	row := r.pool.QueryRow(ctx, `
        INSERT INTO analises (cartorio_id, protocolo_id, tipo, nome_arquivo, arquivo_url, object_key, status, solicitado_por)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8
        WHERE $2::uuid IS NULL OR EXISTS (SELECT 1 FROM protocolos p WHERE p.id = $2 AND p.cartorio_id = $1)
        RETURNING `+analiseColumns,
		input.CartorioID, input.ProtocoloID, input.Tipo, input.NomeArquivo, input.ArquivoURL,
		input.ObjectKey, StatusPendente, input.SolicitadoPor,
	)
	a, err := scanAnalise(row)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrProtocoloNotFound
	}
	return a, err
}

func (r *Repository) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Analise, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+analiseColumns+` FROM analises WHERE cartorio_id = $1 AND id = $2`, cartorioID, id)
	return scanAnalise(row)
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Analise, error) {
	clauses := []string{"cartorio_id = $1"}
	args := []any{filter.CartorioID}
	if filter.ProtocoloID != nil {
		args = append(args, *filter.ProtocoloID)
		clauses = append(clauses, fmt.Sprintf("protocolo_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	query := `SELECT ` + analiseColumns + ` FROM analises WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Analise
	for rows.Next() {
		a, err := scanAnalise(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

// SetStatus só altera análises ainda abertas (pendente ou enviado).
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, resultado []byte, erro *string) (*Analise, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE analises
        SET status = $2, resultado = COALESCE($3, resultado), erro = $4, updated_at = now()
        WHERE id = $1 AND status IN ('pendente', 'enviado')
        RETURNING `+analiseColumns,
		id, status, nullableJSON(resultado), erro,
	)
	a, err := scanAnalise(row)
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM analises WHERE id = $1)`, id).Scan(&exists); qerr != nil {
			return nil, qerr
		}
		if exists {
			return nil, ErrFinished
		}
	}
	return a, err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func scanAnalise(row pgx.Row) (*Analise, error) {
	var a Analise
	var resultado []byte
	err := row.Scan(
		&a.ID, &a.CartorioID, &a.ProtocoloID, &a.Tipo, &a.NomeArquivo, &a.ArquivoURL, &a.ObjectKey,
		&a.Status, &resultado, &a.Erro, &a.SolicitadoPor, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(resultado) > 0 {
		a.Resultado = json.RawMessage(resultado)
	}
	return &a, nil
}

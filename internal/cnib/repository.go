package cnib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartorio-digital/backoffice/internal/documento"
)

// querier é satisfeito por *pgxpool.Pool.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// selectColumns troca hash_consulta por NULL em bancos sem a coluna opcional.
func selectColumns(withHash bool) string {
	hash := "hash_consulta"
	if !withHash {
		hash = "NULL::text AS hash_consulta"
	}
	return `id, documento, tipo_documento, nome_razao_social, ` + hash + `, indisponivel,
        quantidade_ordens, resultado, status, mensagem_erro, usuario_id, cartorio_id, created_at`
}

// Repository grava e lê o histórico em cnib_consultas.
type Repository struct {
	db querier
}

// NewRepository cria o repositório do histórico.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Insert grava o registro; withHash=false omite a coluna hash_consulta do INSERT.
func (r *Repository) Insert(ctx context.Context, rec Record, withHash bool) (*Record, error) {
	columns := []string{"documento", "tipo_documento", "nome_razao_social", "indisponivel",
		"quantidade_ordens", "resultado", "status", "mensagem_erro", "usuario_id", "cartorio_id"}
	args := []any{rec.Documento, string(rec.TipoDocumento), rec.NomeRazaoSocial, rec.Indisponivel,
		rec.QuantidadeOrdens, []byte(rec.Resultado), string(rec.Status), rec.MensagemErro, rec.UsuarioID, rec.CartorioID}

	if withHash {
		columns = append(columns, "hash_consulta")
		args = append(args, rec.Hash)
	} else {
		rec.Hash = nil
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`
        INSERT INTO cnib_consultas (%s)
        VALUES (%s)
        RETURNING id, created_at
    `, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if err := r.db.QueryRow(ctx, query, args...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Get busca uma consulta do cartório.
func (r *Repository) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Record, error) {
	rec, err := r.get(ctx, cartorioID, id, true)
	if isHashColumnMissing(err) {
		rec, err = r.get(ctx, cartorioID, id, false)
	}
	return rec, err
}

func (r *Repository) get(ctx context.Context, cartorioID, id uuid.UUID, withHash bool) (*Record, error) {
	query := `SELECT ` + selectColumns(withHash) + `
        FROM cnib_consultas
        WHERE id = $1 AND cartorio_id = $2`

	return scanRecord(r.db.QueryRow(ctx, query, id, cartorioID))
}

// List devolve o histórico mais recente primeiro.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	out, err := r.list(ctx, filter, true)
	if isHashColumnMissing(err) {
		out, err = r.list(ctx, filter, false)
	}
	return out, err
}

func (r *Repository) list(ctx context.Context, filter ListFilter, withHash bool) ([]Record, error) {
	clauses := []string{"cartorio_id = $1"}
	args := []any{filter.CartorioID}
	idx := 2

	if filter.Documento != "" {
		clauses = append(clauses, fmt.Sprintf("documento = $%d", idx))
		args = append(args, filter.Documento)
		idx++
	}
	if filter.Status != "" {
		clauses = append(clauses, fmt.Sprintf("status = $%d", idx))
		args = append(args, string(filter.Status))
		idx++
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + selectColumns(withHash) + `
        FROM cnib_consultas
        WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec       Record
		tipo      string
		status    string
		resultado []byte
	)
	if err := row.Scan(&rec.ID, &rec.Documento, &tipo, &rec.NomeRazaoSocial, &rec.Hash, &rec.Indisponivel,
		&rec.QuantidadeOrdens, &resultado, &status, &rec.MensagemErro, &rec.UsuarioID, &rec.CartorioID, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.TipoDocumento = documento.Tipo(tipo)
	rec.Status = Status(status)
	rec.Resultado = resultado
	return &rec, nil
}

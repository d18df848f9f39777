package protocolo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartorio-digital/backoffice/internal/db"
)

const protocoloColumns = `id, cartorio_id, numero, tipo, assunto, apresentante, documento, status, prioridade, prazo, responsavel_id, created_by, created_at, updated_at, concluido_em`

// Repository persiste protocolos e andamentos.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create reserva o próximo número do ano e insere o protocolo na mesma transação.
func (r *Repository) Create(ctx context.Context, input CreateInput, ano int) (*Protocolo, error) {
	var created *Protocolo
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var seq int
		err := tx.QueryRow(ctx, `
            INSERT INTO protocolo_sequencias (cartorio_id, ano, ultimo)
            VALUES ($1, $2, 1)
            ON CONFLICT (cartorio_id, ano) DO UPDATE SET ultimo = protocolo_sequencias.ultimo + 1
            RETURNING ultimo
        `, input.CartorioID, ano).Scan(&seq)
		if err != nil {
			return fmt.Errorf("reservar número: %w", err)
		}

		row := tx.QueryRow(ctx, `
            INSERT INTO protocolos (cartorio_id, numero, tipo, assunto, apresentante, documento, status, prioridade, prazo, responsavel_id, created_by)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
            RETURNING `+protocoloColumns,
			input.CartorioID,
			FormatNumero(ano, seq),
			input.Tipo,
			input.Assunto,
			input.Apresentante,
			input.Documento,
			StatusAberto,
			input.Prioridade,
			input.Prazo,
			input.ResponsavelID,
			input.CreatedBy,
		)
		created, err = scanProtocolo(row)
		if err != nil {
			return err
		}

		status := StatusAberto
		_, err = insertAndamento(ctx, tx, created.ID, input.CreatedBy, "Protocolo aberto", nil, &status)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get busca o protocolo dentro do cartório.
func (r *Repository) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Protocolo, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+protocoloColumns+` FROM protocolos WHERE cartorio_id = $1 AND id = $2`, cartorioID, id)
	return scanProtocolo(row)
}

// List lista protocolos do cartório, mais recentes primeiro.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Protocolo, error) {
	clauses := []string{"cartorio_id = $1"}
	args := []any{filter.CartorioID}
	idx := 2

	if len(filter.Status) > 0 {
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", idx))
		args = append(args, filter.Status)
		idx++
	}
	if busca := strings.TrimSpace(filter.Busca); busca != "" {
		clauses = append(clauses, fmt.Sprintf("(numero ILIKE $%d OR assunto ILIKE $%d OR apresentante ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+busca+"%")
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

	query := `SELECT ` + protocoloColumns + ` FROM protocolos WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Protocolo
	for rows.Next() {
		p, err := scanProtocolo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

// Update aplica a alteração e grava andamento quando o status muda.
func (r *Repository) Update(ctx context.Context, input UpdateInput) (*Protocolo, error) {
	var updated *Protocolo
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM protocolos WHERE cartorio_id = $1 AND id = $2 FOR UPDATE`,
			input.CartorioID, input.ID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		setParts := []string{"updated_at = now()"}
		args := []any{}
		idx := 1
		add := func(expr string, val any) {
			setParts = append(setParts, fmt.Sprintf(expr, idx))
			args = append(args, val)
			idx++
		}

		if input.Status != nil {
			add("status = $%d", *input.Status)
		}
		if input.Prioridade != nil {
			add("prioridade = $%d", *input.Prioridade)
		}
		if input.ResponsavelID != nil {
			add("responsavel_id = $%d", *input.ResponsavelID)
		} else if input.ClearResponsavel {
			setParts = append(setParts, "responsavel_id = NULL")
		}
		if input.Prazo != nil {
			add("prazo = $%d", *input.Prazo)
		}
		if input.ConcluidoEm != nil {
			add("concluido_em = $%d", *input.ConcluidoEm)
		} else if input.ReabrirConclusao {
			setParts = append(setParts, "concluido_em = NULL")
		}

		args = append(args, input.CartorioID, input.ID)
		row := tx.QueryRow(ctx, fmt.Sprintf(`UPDATE protocolos SET %s WHERE cartorio_id = $%d AND id = $%d RETURNING %s`,
			strings.Join(setParts, ", "), idx, idx+1, protocoloColumns), args...)
		updated, err = scanProtocolo(row)
		if err != nil {
			return err
		}

		if input.Status != nil && *input.Status != current {
			descricao := input.Observacao
			if descricao == "" {
				descricao = fmt.Sprintf("Status alterado de %s para %s", current, *input.Status)
			}
			_, err = insertAndamento(ctx, tx, input.ID, input.AutorID, descricao, &current, input.Status)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AddAndamento registra movimentação avulsa em protocolo do cartório.
func (r *Repository) AddAndamento(ctx context.Context, input AndamentoInput) (*Andamento, error) {
	var created *Andamento
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM protocolos WHERE cartorio_id = $1 AND id = $2`,
			input.CartorioID, input.ProtocoloID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if IsClosing(status) {
			return ErrClosed
		}

		created, err = insertAndamento(ctx, tx, input.ProtocoloID, input.AutorID, input.Descricao, nil, nil)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE protocolos SET updated_at = now() WHERE id = $1`, input.ProtocoloID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListAndamentos devolve o histórico em ordem cronológica.
func (r *Repository) ListAndamentos(ctx context.Context, cartorioID, protocoloID uuid.UUID) ([]Andamento, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT a.id, a.protocolo_id, a.autor_id, a.descricao, a.status_anterior, a.status_novo, a.created_at
        FROM protocolo_andamentos a
        JOIN protocolos p ON p.id = a.protocolo_id
        WHERE p.cartorio_id = $1 AND a.protocolo_id = $2
        ORDER BY a.created_at ASC
    `, cartorioID, protocoloID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Andamento
	for rows.Next() {
		a, err := scanAndamento(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *a)
	}
	return items, rows.Err()
}

func insertAndamento(ctx context.Context, tx pgx.Tx, protocoloID, autorID uuid.UUID, descricao string, anterior, novo *string) (*Andamento, error) {
	row := tx.QueryRow(ctx, `
        INSERT INTO protocolo_andamentos (protocolo_id, autor_id, descricao, status_anterior, status_novo)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, protocolo_id, autor_id, descricao, status_anterior, status_novo, created_at
    `, protocoloID, autorID, descricao, anterior, novo)
	return scanAndamento(row)
}

func scanProtocolo(row pgx.Row) (*Protocolo, error) {
	var p Protocolo
	if err := row.Scan(&p.ID, &p.CartorioID, &p.Numero, &p.Tipo, &p.Assunto, &p.Apresentante, &p.Documento,
		&p.Status, &p.Prioridade, &p.Prazo, &p.ResponsavelID, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.ConcluidoEm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAndamento(row pgx.Row) (*Andamento, error) {
	var a Andamento
	if err := row.Scan(&a.ID, &a.ProtocoloID, &a.AutorID, &a.Descricao, &a.StatusAnterior, &a.StatusNovo, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

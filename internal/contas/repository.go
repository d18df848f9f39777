package contas

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const contaColumns = `id, cartorio_id, fornecedor, descricao, categoria, valor, vencimento, pago, pago_em, forma_pagamento, observacoes, created_by, created_at, updated_at`

// Repository persiste contas a pagar e anexos.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, input CreateInput) (*Conta, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO contas_pagar (cartorio_id, fornecedor, descricao, categoria, valor, vencimento, forma_pagamento, observacoes, created_by)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+contaColumns,
		input.CartorioID, input.Fornecedor, input.Descricao, input.Categoria, input.Valor,
		input.Vencimento, input.FormaPagamento, input.Observacoes, input.CreatedBy,
	)
	return scanConta(row)
}

func (r *Repository) Get(ctx context.Context, cartorioID, id uuid.UUID) (*Conta, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+contaColumns+` FROM contas_pagar WHERE cartorio_id = $1 AND id = $2`, cartorioID, id)
	return scanConta(row)
}

// List aplica situação e período; a situação é derivada de pago e vencimento.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Conta, error) {
	clauses, args := filterClauses(filter)
	idx := len(args) + 1

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + contaColumns + ` FROM contas_pagar WHERE ` + strings.Join(clauses, " AND ") +
		fmt.Sprintf(" ORDER BY vencimento ASC, created_at ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Conta
	for rows.Next() {
		c, err := scanConta(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

func filterClauses(filter Filter) ([]string, []any) {
	clauses := []string{"cartorio_id = $1"}
	args := []any{filter.CartorioID}
	next := func() int { return len(args) + 1 }

	switch filter.Situacao {
	case SituacaoPaga:
		clauses = append(clauses, "pago")
	case SituacaoPendente:
		clauses = append(clauses, fmt.Sprintf("NOT pago AND vencimento >= $%d::date", next()))
		args = append(args, filter.Hoje)
	case SituacaoVencida:
		clauses = append(clauses, fmt.Sprintf("NOT pago AND vencimento < $%d::date", next()))
		args = append(args, filter.Hoje)
	}
	if filter.De != nil {
		clauses = append(clauses, fmt.Sprintf("vencimento >= $%d::date", next()))
		args = append(args, *filter.De)
	}
	if filter.Ate != nil {
		clauses = append(clauses, fmt.Sprintf("vencimento <= $%d::date", next()))
		args = append(args, *filter.Ate)
	}
	return clauses, args
}

func (r *Repository) Update(ctx context.Context, input UpdateInput) (*Conta, error) {
	setParts := []string{"updated_at = now()"}
	args := []any{}
	add := func(column string, val any) {
		args = append(args, val)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if input.Fornecedor != nil {
		add("fornecedor", *input.Fornecedor)
	}
	if input.Descricao != nil {
		add("descricao", *input.Descricao)
	}
	if input.Categoria != nil {
		add("categoria", *input.Categoria)
	}
	if input.Valor != nil {
		add("valor", *input.Valor)
	}
	if input.Vencimento != nil {
		add("vencimento", *input.Vencimento)
	}
	if input.FormaPagamento != nil {
		add("forma_pagamento", *input.FormaPagamento)
	}
	if input.Observacoes != nil {
		add("observacoes", *input.Observacoes)
	}

	args = append(args, input.CartorioID, input.ID)
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`UPDATE contas_pagar SET %s WHERE cartorio_id = $%d AND id = $%d RETURNING %s`,
		strings.Join(setParts, ", "), len(args)-1, len(args), contaColumns), args...)
	return scanConta(row)
}

// MarkPaid marca como paga; conta já paga devolve ErrAlreadyPaid.
func (r *Repository) MarkPaid(ctx context.Context, cartorioID, id uuid.UUID, formaPagamento *string) (*Conta, error) {
	row := r.pool.QueryRow(ctx, `
        UPDATE contas_pagar
        SET pago = true, pago_em = now(), forma_pagamento = COALESCE($3, forma_pagamento), updated_at = now()
        WHERE cartorio_id = $1 AND id = $2 AND NOT pago
        RETURNING `+contaColumns, cartorioID, id, formaPagamento)
	c, err := scanConta(row)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.Get(ctx, cartorioID, id); getErr == nil {
			return nil, ErrAlreadyPaid
		}
	}
	return c, err
}

// Delete remove a conta e devolve as chaves dos anexos para limpeza no storage.
func (r *Repository) Delete(ctx context.Context, cartorioID, id uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT a.object_key FROM contas_pagar_anexos a
        JOIN contas_pagar c ON c.id = a.conta_id
        WHERE c.cartorio_id = $1 AND c.id = $2
    `, cartorioID, id)
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM contas_pagar WHERE cartorio_id = $1 AND id = $2`, cartorioID, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return keys, nil
}

// Summary soma quantidade e valor por situação.
func (r *Repository) Summary(ctx context.Context, filter Filter) (*Resumo, error) {
	clauses, args := filterClauses(Filter{CartorioID: filter.CartorioID, De: filter.De, Ate: filter.Ate})
	args = append(args, filter.Hoje)
	hoje := len(args)

	query := fmt.Sprintf(`
        SELECT
            count(*) FILTER (WHERE NOT pago AND vencimento >= $%[1]d::date),
            COALESCE(sum(valor) FILTER (WHERE NOT pago AND vencimento >= $%[1]d::date), 0),
            count(*) FILTER (WHERE pago),
            COALESCE(sum(valor) FILTER (WHERE pago), 0),
            count(*) FILTER (WHERE NOT pago AND vencimento < $%[1]d::date),
            COALESCE(sum(valor) FILTER (WHERE NOT pago AND vencimento < $%[1]d::date), 0)
        FROM contas_pagar
        WHERE %[2]s
    `, hoje, strings.Join(clauses, " AND "))

	var res Resumo
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&res.Pendente.Quantidade, &res.Pendente.Valor,
		&res.Paga.Quantidade, &res.Paga.Valor,
		&res.Vencida.Quantidade, &res.Vencida.Valor,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Repository) AddAnexo(ctx context.Context, input AnexoInput) (*Anexo, error) {
	row := r.pool.QueryRow(ctx, `
        INSERT INTO contas_pagar_anexos (conta_id, nome, url, object_key, content_type, tamanho, enviado_por)
        SELECT c.id, $3, $4, $5, $6, $7, $8 FROM contas_pagar c WHERE c.cartorio_id = $1 AND c.id = $2
        RETURNING id, conta_id, nome, url, object_key, content_type, tamanho, enviado_por, created_at
    `, input.CartorioID, input.ContaID, input.Nome, input.URL, input.ObjectKey, input.ContentType, input.Tamanho, input.EnviadoPor)
	a, err := scanAnexo(row)
	if errors.Is(err, ErrAnexoNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAnexos carrega anexos de várias contas de uma vez.
func (r *Repository) ListAnexos(ctx context.Context, contaIDs []uuid.UUID) (map[uuid.UUID][]Anexo, error) {
	out := make(map[uuid.UUID][]Anexo, len(contaIDs))
	if len(contaIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
        SELECT id, conta_id, nome, url, object_key, content_type, tamanho, enviado_por, created_at
        FROM contas_pagar_anexos
        WHERE conta_id = ANY($1)
        ORDER BY created_at ASC
    `, contaIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAnexo(rows)
		if err != nil {
			return nil, err
		}
		out[a.ContaID] = append(out[a.ContaID], *a)
	}
	return out, rows.Err()
}

// DeleteAnexo remove o anexo e devolve sua chave no storage.
func (r *Repository) DeleteAnexo(ctx context.Context, cartorioID, contaID, anexoID uuid.UUID) (string, error) {
	var key string
	err := r.pool.QueryRow(ctx, `
        DELETE FROM contas_pagar_anexos a
        USING contas_pagar c
        WHERE a.conta_id = c.id AND c.cartorio_id = $1 AND c.id = $2 AND a.id = $3
        RETURNING a.object_key
    `, cartorioID, contaID, anexoID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrAnexoNotFound
	}
	return key, err
}

func scanConta(row pgx.Row) (*Conta, error) {
	var c Conta
	if err := row.Scan(&c.ID, &c.CartorioID, &c.Fornecedor, &c.Descricao, &c.Categoria, &c.Valor, &c.Vencimento,
		&c.Pago, &c.PagoEm, &c.FormaPagamento, &c.Observacoes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Anexos = []Anexo{}
	return &c, nil
}

func scanAnexo(row pgx.Row) (*Anexo, error) {
	var a Anexo
	if err := row.Scan(&a.ID, &a.ContaID, &a.Nome, &a.URL, &a.ObjectKey, &a.ContentType, &a.Tamanho, &a.EnviadoPor, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnexoNotFound
		}
		return nil, err
	}
	return &a, nil
}

package cartorio

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provê acesso às tabelas cartorios e cartorio_usuarios.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository cria um novo repositório de cartórios.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID busca cartório pelo identificador.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Cartorio, error) {
	const query = `
        SELECT id, nome, cns, cpf_responsavel, created_at, updated_at
        FROM cartorios
        WHERE id = $1
    `

	return scanCartorio(r.pool.QueryRow(ctx, query, id))
}

// GetByUsuario devolve o cartório vinculado ao usuário (o vínculo mais antigo vence).
func (r *Repository) GetByUsuario(ctx context.Context, usuarioID uuid.UUID) (*Cartorio, error) {
	const query = `
        SELECT c.id, c.nome, c.cns, c.cpf_responsavel, c.created_at, c.updated_at
        FROM cartorio_usuarios cu
        JOIN cartorios c ON c.id = cu.cartorio_id
        WHERE cu.usuario_id = $1 AND cu.ativo
        ORDER BY cu.created_at ASC
        LIMIT 1
    `

	return scanCartorio(r.pool.QueryRow(ctx, query, usuarioID))
}

// List devolve todos os cartórios ordenados por nome.
func (r *Repository) List(ctx context.Context) ([]Cartorio, error) {
	const query = `
        SELECT id, nome, cns, cpf_responsavel, created_at, updated_at
        FROM cartorios
        ORDER BY nome ASC
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Cartorio
	for rows.Next() {
		c, err := scanCartorio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return out, nil
}

// Create insere o cartório e devolve os dados persistidos.
func (r *Repository) Create(ctx context.Context, input CreateCartorioInput) (*Cartorio, error) {
	const query = `
        INSERT INTO cartorios (nome, cns, cpf_responsavel)
        VALUES ($1, $2, $3)
        RETURNING id, nome, cns, cpf_responsavel, created_at, updated_at
    `

	row := r.pool.QueryRow(ctx, query,
		strings.TrimSpace(input.Nome),
		strings.TrimSpace(input.CNS),
		strings.TrimSpace(input.CPFResponsavel),
	)
	return scanCartorio(row)
}

// AddMembro cria ou reativa o vínculo do usuário.
func (r *Repository) AddMembro(ctx context.Context, input AddMembroInput) (*Membro, error) {
	const query = `
        INSERT INTO cartorio_usuarios (usuario_id, cartorio_id, papel, ativo)
        VALUES ($1, $2, $3, true)
        ON CONFLICT (usuario_id, cartorio_id) DO UPDATE SET papel = EXCLUDED.papel, ativo = true
        RETURNING usuario_id, cartorio_id, papel, created_at
    `

	var m Membro
	if err := r.pool.QueryRow(ctx, query, input.UsuarioID, input.CartorioID, input.Papel).
		Scan(&m.UsuarioID, &m.CartorioID, &m.Papel, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanCartorio(row pgx.Row) (*Cartorio, error) {
	var c Cartorio
	if err := row.Scan(&c.ID, &c.Nome, &c.CNS, &c.CPFResponsavel, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

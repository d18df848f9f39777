package cnib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/cartorio-digital/backoffice/internal/cartorio"
)

const (
	// pgUndefinedColumn é o SQLSTATE de coluna inexistente.
	pgUndefinedColumn = "42703"
	hashColumn        = "hash_consulta"
)

type recordStore interface {
	Insert(ctx context.Context, rec Record, withHash bool) (*Record, error)
}

type officeResolver interface {
	ResolveForUser(ctx context.Context, userID string) (*cartorio.Cartorio, error)
}

// Recorder grava o histórico de consultas sem nunca interferir no resultado devolvido.
type Recorder struct {
	store   recordStore
	offices officeResolver
	logger  zerolog.Logger
}

// NewRecorder cria o gravador do histórico.
func NewRecorder(store recordStore, offices officeResolver, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, offices: offices, logger: logger}
}

// Record resolve o cartório do usuário e insere a consulta.
// Sem cartório devolve ErrNoOffice; demais falhas vêm envolvidas em ErrPersistence.
func (r *Recorder) Record(ctx context.Context, rec Record, userID string) (*Record, error) {
	office, err := r.offices.ResolveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, cartorio.ErrNotFound) {
			r.logger.Info().Str("usuario_id", userID).Msg("cnib: usuário sem cartório, histórico não gravado")
			return nil, ErrNoOffice
		}
		r.logger.Error().Err(err).Str("usuario_id", userID).Msg("cnib: falha ao resolver cartório")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: usuario_id inválido", ErrPersistence)
	}
	rec.UsuarioID = uid
	rec.CartorioID = office.ID

	withHash := rec.Hash != nil
	if withHash && !ValidHash(*rec.Hash) {
		r.logger.Warn().Str("hash", *rec.Hash).Msg("cnib: hash fora do padrão, gravando sem hash")
		rec.Hash = nil
		withHash = false
	}

	saved, err := r.store.Insert(ctx, rec, withHash)
	if err != nil && withHash && isHashColumnMissing(err) {
		r.logger.Warn().Err(err).Msg("cnib: coluna hash_consulta ausente, repetindo sem hash")
		rec.Hash = nil
		saved, err = r.store.Insert(ctx, rec, false)
	}
	if err != nil {
		r.logger.Error().Err(err).Str("cartorio_id", office.ID.String()).Msg("cnib: falha ao gravar consulta")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return saved, nil
}

// isHashColumnMissing só aceita o 42703 que cita a coluna opcional do hash.
func isHashColumnMissing(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUndefinedColumn {
		return false
	}
	return pgErr.ColumnName == hashColumn || strings.Contains(pgErr.Message, hashColumn)
}

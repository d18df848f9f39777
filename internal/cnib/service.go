package cnib

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cartorio-digital/backoffice/internal/auth"
	"github.com/cartorio-digital/backoffice/internal/cartorio"
	"github.com/cartorio-digital/backoffice/internal/documento"
)

const tracerName = "github.com/cartorio-digital/backoffice/internal/cnib"

type identityResolver interface {
	Resolve(ctx context.Context, authorization, cookieHeader string) (*auth.Identity, error)
}

type upstreamQuerier interface {
	Query(ctx context.Context, token, officeID, subjectID string) (*UpstreamResponse, error)
}

type historyRecorder interface {
	Record(ctx context.Context, rec Record, userID string) (*Record, error)
}

type historyStore interface {
	Get(ctx context.Context, cartorioID, id uuid.UUID) (*Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

type tokenInvalidator interface {
	Invalidate(ctx context.Context)
}

// Deps agrupa as dependências do pipeline; todas são criadas uma vez no boot.
type Deps struct {
	Identity         identityResolver
	Tokens           TokenSource
	Upstream         upstreamQuerier
	Recorder         historyRecorder
	History          historyStore
	Offices          officeResolver
	OfficeIdentifier string
	Logger           zerolog.Logger
}

// Service executa a consulta de indisponibilidade de ponta a ponta.
type Service struct {
	identity identityResolver
	tokens   TokenSource
	upstream upstreamQuerier
	recorder historyRecorder
	history  historyStore
	offices  officeResolver
	officeID string
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewService cria o serviço a partir das dependências.
func NewService(deps Deps) *Service {
	return &Service{
		identity: deps.Identity,
		tokens:   deps.Tokens,
		upstream: deps.Upstream,
		recorder: deps.Recorder,
		history:  deps.History,
		offices:  deps.Offices,
		officeID: deps.OfficeIdentifier,
		logger:   deps.Logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// ConsultInput traz o documento e as credenciais crus da requisição.
type ConsultInput struct {
	Documento     string
	Authorization string
	Cookie        string
}

// ConsultResult devolve a resposta original da CNIB e o que foi extraído dela.
type ConsultResult struct {
	Data       json.RawMessage
	Extraction *Extraction
	Record     *Record
}

// Consult valida, autentica, obtém token, consulta a CNIB, extrai e grava o histórico.
// Falhas depois da chamada à CNIB também são gravadas antes de retornar o erro.
func (s *Service) Consult(ctx context.Context, in ConsultInput) (*ConsultResult, error) {
	ctx, span := s.tracer.Start(ctx, "cnib.consult")
	defer span.End()

	doc, tipo, err := documento.Normalize(in.Documento)
	if err != nil {
		return nil, s.fail(span, errInvalidDocument(err))
	}
	span.SetAttributes(attribute.String("cnib.tipo_documento", string(tipo)))

	caller, err := s.identity.Resolve(ctx, in.Authorization, in.Cookie)
	if err != nil {
		return nil, s.fail(span, errUnauthenticated(err))
	}

	if err := CheckOfficeIdentifier(s.officeID); err != nil {
		return nil, s.fail(span, err)
	}

	logger := s.logger.With().Str("documento", mask(doc)).Str("usuario_id", caller.ID).Logger()

	token, err := s.acquireToken(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("cnib: token indisponível")
		return nil, s.fail(span, err)
	}

	resp, err := s.query(ctx, token, doc)
	if err != nil {
		cerr, ok := AsError(err)
		if !ok {
			cerr = errUnreachable("Falha inesperada ao consultar a CNIB", "", err)
		}
		logger.Error().Err(cerr).Int("upstream_status", cerr.UpstreamStatus).Msg("cnib: consulta falhou")

		if cerr.Kind == KindUpstreamRejected && (cerr.UpstreamStatus == http.StatusUnauthorized || cerr.UpstreamStatus == http.StatusForbidden) {
			if inv, ok := s.tokens.(tokenInvalidator); ok {
				inv.Invalidate(ctx)
			}
		}
		if cerr.Recordable() {
			s.record(ctx, failureRecord(doc, tipo, cerr), caller.ID)
		}
		return nil, s.fail(span, cerr)
	}

	ex := s.extract(ctx, logger, resp)
	rec := s.record(ctx, successRecord(doc, tipo, resp, ex), caller.ID)

	logger.Info().Bool("indisponivel", ex.Unavailable).Int("quantidade_ordens", ex.OrderCount).
		Bool("historico_gravado", rec != nil).Msg("cnib: consulta concluída")

	return &ConsultResult{Data: resp.Body, Extraction: ex, Record: rec}, nil
}

// History lista as consultas do cartório do usuário.
func (s *Service) History(ctx context.Context, userID string, filter ListFilter) ([]Record, error) {
	office, err := s.offices.ResolveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, cartorio.ErrNotFound) {
			return nil, ErrNoOffice
		}
		return nil, err
	}
	filter.CartorioID = office.ID
	if filter.Documento != "" {
		filter.Documento = documento.Digits(filter.Documento)
	}
	return s.history.List(ctx, filter)
}

// Get devolve uma consulta do cartório do usuário.
func (s *Service) Get(ctx context.Context, userID string, id uuid.UUID) (*Record, error) {
	office, err := s.offices.ResolveForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, cartorio.ErrNotFound) {
			return nil, ErrNoOffice
		}
		return nil, err
	}
	return s.history.Get(ctx, office.ID, id)
}

func (s *Service) acquireToken(ctx context.Context) (string, error) {
	ctx, span := s.tracer.Start(ctx, "cnib.token")
	defer span.End()

	token, err := s.tokens.Token(ctx)
	if err != nil {
		if _, ok := AsError(err); !ok {
			err = errTokenUnavailable("Não foi possível obter token da CNIB", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "token indisponível")
		return "", err
	}
	return token, nil
}

func (s *Service) query(ctx context.Context, token, doc string) (*UpstreamResponse, error) {
	ctx, span := s.tracer.Start(ctx, "cnib.query")
	defer span.End()

	resp, err := s.upstream.Query(ctx, token, s.officeID, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "consulta falhou")
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.Status))
	return resp, nil
}

func (s *Service) extract(ctx context.Context, logger zerolog.Logger, resp *UpstreamResponse) *Extraction {
	_, span := s.tracer.Start(ctx, "cnib.extract")
	defer span.End()

	ex := Extract(resp.Value)
	span.SetAttributes(attribute.String("cnib.extract.payload_level", ex.PayloadLevel))

	for _, d := range ex.Trace {
		span.SetAttributes(attribute.String("cnib.extract."+d.Field+"."+string(d.Outcome), d.Path))
		event := logger.Debug()
		if d.Outcome == OutcomeRejected {
			event = logger.Warn()
		}
		event.Str("campo", d.Field).Str("caminho", d.Path).Str("resultado", string(d.Outcome)).
			Str("motivo", d.Reason).Msg("cnib: extração")
	}
	return ex
}

func (s *Service) record(ctx context.Context, rec Record, userID string) *Record {
	ctx, span := s.tracer.Start(ctx, "cnib.record")
	defer span.End()

	saved, err := s.recorder.Record(ctx, rec, userID)
	if err != nil {
		if !errors.Is(err, ErrNoOffice) {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Bool("cnib.record.saved", false))
		return nil
	}
	span.SetAttributes(attribute.Bool("cnib.record.saved", true))
	return saved
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// mask preserva só o início e o fim do documento nos logs.
func mask(doc string) string {
	if len(doc) < 5 {
		return "***"
	}
	return doc[:3] + "*****" + doc[len(doc)-2:]
}

package cartorio

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cartorio-digital/backoffice/internal/documento"
)

type store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Cartorio, error)
	GetByUsuario(ctx context.Context, usuarioID uuid.UUID) (*Cartorio, error)
	List(ctx context.Context) ([]Cartorio, error)
	Create(ctx context.Context, input CreateCartorioInput) (*Cartorio, error)
	AddMembro(ctx context.Context, input AddMembroInput) (*Membro, error)
}

// Service resolve o cartório do usuário e administra cadastros.
type Service struct {
	repo     store
	validate *validator.Validate
	cache    sync.Map
	cacheTTL time.Duration
	now      func() time.Time
}

type cachedCartorio struct {
	cartorio Cartorio
	expireAt time.Time
}

// NewService cria uma nova instância de Service.
func NewService(repo store) *Service {
	return &Service{
		repo:     repo,
		validate: validator.New(),
		cacheTTL: 2 * time.Minute,
		now:      time.Now,
	}
}

// ResolveForUser encontra o cartório ao qual o usuário pertence.
func (s *Service) ResolveForUser(ctx context.Context, userID string) (*Cartorio, error) {
	id, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, ErrNotFound
	}

	if v, ok := s.cache.Load(id); ok {
		entry := v.(cachedCartorio)
		if s.now().Before(entry.expireAt) {
			c := entry.cartorio
			return &c, nil
		}
		s.cache.Delete(id)
	}

	c, err := s.repo.GetByUsuario(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.Store(id, cachedCartorio{cartorio: *c, expireAt: s.now().Add(s.cacheTTL)})

	out := *c
	return &out, nil
}

// Get busca cartório pelo id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Cartorio, error) {
	return s.repo.GetByID(ctx, id)
}

// List devolve os cartórios cadastrados.
func (s *Service) List(ctx context.Context) ([]Cartorio, error) {
	return s.repo.List(ctx)
}

// Create registra um novo cartório.
func (s *Service) Create(ctx context.Context, input CreateCartorioInput) (*Cartorio, error) {
	input.Nome = strings.TrimSpace(input.Nome)
	input.CNS = documento.Digits(input.CNS)
	input.CPFResponsavel = documento.Digits(input.CPFResponsavel)

	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	return s.repo.Create(ctx, input)
}

// AddMembro vincula usuário ao cartório e invalida o cache dele.
func (s *Service) AddMembro(ctx context.Context, input AddMembroInput) (*Membro, error) {
	input.Papel = strings.ToLower(strings.TrimSpace(input.Papel))
	if _, ok := validPapeis[input.Papel]; !ok {
		return nil, ErrInvalidPapel
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	m, err := s.repo.AddMembro(ctx, input)
	if err != nil {
		return nil, err
	}

	s.cache.Delete(input.UsuarioID)
	return m, nil
}

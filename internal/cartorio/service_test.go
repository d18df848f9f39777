package cartorio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type stubStore struct {
	byUser  map[uuid.UUID]Cartorio
	lookups int
	created []CreateCartorioInput
}

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*Cartorio, error) {
	for _, c := range s.byUser {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *stubStore) GetByUsuario(ctx context.Context, usuarioID uuid.UUID) (*Cartorio, error) {
	s.lookups++
	c, ok := s.byUser[usuarioID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *stubStore) List(ctx context.Context) ([]Cartorio, error) { return nil, nil }

func (s *stubStore) Create(ctx context.Context, input CreateCartorioInput) (*Cartorio, error) {
	s.created = append(s.created, input)
	return &Cartorio{ID: uuid.New(), Nome: input.Nome, CNS: input.CNS, CPFResponsavel: input.CPFResponsavel}, nil
}

func (s *stubStore) AddMembro(ctx context.Context, input AddMembroInput) (*Membro, error) {
	return &Membro{UsuarioID: input.UsuarioID, CartorioID: input.CartorioID, Papel: input.Papel}, nil
}

func TestResolveForUserCaches(t *testing.T) {
	user := uuid.New()
	store := &stubStore{byUser: map[uuid.UUID]Cartorio{user: {ID: uuid.New(), Nome: "1º Tabelionato"}}}
	svc := NewService(store)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		c, err := svc.ResolveForUser(context.Background(), user.String())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Nome != "1º Tabelionato" {
			t.Fatalf("unexpected cartorio %+v", c)
		}
	}
	if store.lookups != 1 {
		t.Fatalf("expected 1 lookup, got %d", store.lookups)
	}

	now = now.Add(3 * time.Minute)
	if _, err := svc.ResolveForUser(context.Background(), user.String()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lookups != 2 {
		t.Fatalf("expired entry must be reloaded, lookups=%d", store.lookups)
	}
}

func TestResolveForUserNotFound(t *testing.T) {
	svc := NewService(&stubStore{byUser: map[uuid.UUID]Cartorio{}})

	if _, err := svc.ResolveForUser(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if _, err := svc.ResolveForUser(context.Background(), "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id got %v", err)
	}
}

func TestCreateNormalizesAndValidates(t *testing.T) {
	store := &stubStore{}
	svc := NewService(store)

	c, err := svc.Create(context.Background(), CreateCartorioInput{
		Nome:           "  2º Ofício de Notas ",
		CNS:            "12.345-6",
		CPFResponsavel: "123.456.789-09",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CNS != "123456" || c.CPFResponsavel != "12345678909" || c.Nome != "2º Ofício de Notas" {
		t.Fatalf("unexpected normalization %+v", c)
	}

	_, err = svc.Create(context.Background(), CreateCartorioInput{Nome: "X", CNS: "1", CPFResponsavel: "1"})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors got %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("invalid input must not reach the store")
	}
}

func TestAddMembroRejectsUnknownPapel(t *testing.T) {
	svc := NewService(&stubStore{})
	_, err := svc.AddMembro(context.Background(), AddMembroInput{UsuarioID: uuid.New(), CartorioID: uuid.New(), Papel: "dono"})
	if !errors.Is(err, ErrInvalidPapel) {
		t.Fatalf("expected ErrInvalidPapel got %v", err)
	}

	m, err := svc.AddMembro(context.Background(), AddMembroInput{UsuarioID: uuid.New(), CartorioID: uuid.New(), Papel: " Escrevente "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Papel != PapelEscrevente {
		t.Fatalf("expected normalized papel got %s", m.Papel)
	}
}

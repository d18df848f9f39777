package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cartorio-digital/backoffice/internal/cartorio"
	"github.com/cartorio-digital/backoffice/internal/db"
	"github.com/cartorio-digital/backoffice/internal/documento"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	service := cartorio.NewService(cartorio.NewRepository(pool))

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "create":
		if err := runCreate(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao cadastrar cartório")
		}
	case "list":
		if err := runList(ctx, service); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar cartórios")
		}
	case "add-member":
		if err := runAddMember(ctx, service, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao vincular usuário")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "cartorio CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  cartorio create --nome \"1º Ofício de Registro de Imóveis\" --cns 123456 --cpf 12345678909")
	fmt.Fprintln(os.Stderr, "  cartorio list")
	fmt.Fprintln(os.Stderr, "  cartorio add-member --cartorio <uuid> --usuario <uuid> [--papel escrevente]")
}

func runCreate(ctx context.Context, service *cartorio.Service, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		nome = fs.String("nome", "", "nome da serventia")
		cns  = fs.String("cns", "", "código CNS (6 dígitos)")
		cpf  = fs.String("cpf", "", "CPF do responsável (usado como identificador na CNIB)")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *nome == "" || *cns == "" || *cpf == "" {
		return errors.New("nome, cns e cpf são obrigatórios")
	}

	created, err := service.Create(ctx, cartorio.CreateCartorioInput{
		Nome:           *nome,
		CNS:            *cns,
		CPFResponsavel: *cpf,
	})
	if err != nil {
		return err
	}

	log.Info().Str("cns", created.CNS).Str("cpf_responsavel", documento.Format(created.CPFResponsavel)).Msg("cartório cadastrado")
	output, _ := json.MarshalIndent(created, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runList(ctx context.Context, service *cartorio.Service) error {
	items, err := service.List(ctx)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("nenhum cartório cadastrado")
		return nil
	}

	encoded, _ := json.MarshalIndent(items, "", "  ")
	fmt.Println(string(encoded))
	return nil
}

func runAddMember(ctx context.Context, service *cartorio.Service, args []string) error {
	fs := flag.NewFlagSet("add-member", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		cartorioID = fs.String("cartorio", "", "id do cartório")
		usuarioID  = fs.String("usuario", "", "id do usuário no serviço de identidade")
		papel      = fs.String("papel", cartorio.PapelEscrevente, "titular, substituto, escrevente ou auxiliar")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	cid, err := uuid.Parse(strings.TrimSpace(*cartorioID))
	if err != nil {
		return errors.New("cartorio deve ser um uuid")
	}
	uid, err := uuid.Parse(strings.TrimSpace(*usuarioID))
	if err != nil {
		return errors.New("usuario deve ser um uuid")
	}

	membro, err := service.AddMembro(ctx, cartorio.AddMembroInput{
		UsuarioID:  uid,
		CartorioID: cid,
		Papel:      *papel,
	})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(membro, "", "  ")
	fmt.Println(string(output))
	return nil
}

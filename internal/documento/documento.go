// Package documento normaliza CPF e CNPJ informados pelos usuários.
package documento

import (
	"errors"
	"strings"
)

// Tipo identifica a natureza do documento.
type Tipo string

const (
	CPF  Tipo = "CPF"
	CNPJ Tipo = "CNPJ"
)

// ErrFormatoInvalido indica que o documento não tem 11 nem 14 dígitos.
var ErrFormatoInvalido = errors.New("documento deve ter 11 (CPF) ou 14 (CNPJ) dígitos")

// Digits remove tudo que não for dígito ASCII.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Normalize limpa a formatação e classifica o documento.
func Normalize(raw string) (string, Tipo, error) {
	digits := Digits(raw)
	switch len(digits) {
	case 11:
		return digits, CPF, nil
	case 14:
		return digits, CNPJ, nil
	default:
		return "", "", ErrFormatoInvalido
	}
}

// IsCPF informa se o valor, já sem formatação, tem exatamente 11 dígitos.
func IsCPF(raw string) bool {
	return len(raw) == 11 && Digits(raw) == raw
}

// Format aplica a máscara usual para exibição.
func Format(digits string) string {
	switch len(digits) {
	case 11:
		return digits[0:3] + "." + digits[3:6] + "." + digits[6:9] + "-" + digits[9:11]
	case 14:
		return digits[0:2] + "." + digits[2:5] + "." + digits[5:8] + "/" + digits[8:12] + "-" + digits[12:14]
	default:
		return digits
	}
}

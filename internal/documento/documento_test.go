package documento

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		digits string
		tipo   Tipo
		ok     bool
	}{
		{"cpf formatado", "123.456.789-09", "12345678909", CPF, true},
		{"cpf limpo", "12345678909", "12345678909", CPF, true},
		{"cnpj formatado", "12.345.678/0001-95", "12345678000195", CNPJ, true},
		{"cnpj com espacos", " 12 345 678 0001 95 ", "12345678000195", CNPJ, true},
		{"curto", "123.456.789-0", "", "", false},
		{"doze digitos", "123456789012", "", "", false},
		{"quinze digitos", "123456789012345", "", "", false},
		{"vazio", "", "", "", false},
		{"letras", "abc.def.ghi-jk", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			digits, tipo, err := Normalize(tc.raw)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err != ErrFormatoInvalido {
					t.Fatalf("expected ErrFormatoInvalido, got %v", err)
				}
				return
			}
			if digits != tc.digits || tipo != tc.tipo {
				t.Fatalf("expected %s/%s got %s/%s", tc.digits, tc.tipo, digits, tipo)
			}
		})
	}
}

func TestNormalizeAcceptsOnlyElevenOrFourteen(t *testing.T) {
	for n := 0; n <= 20; n++ {
		raw := ""
		for i := 0; i < n; i++ {
			raw += "9"
			if i%3 == 2 {
				raw += "."
			}
		}
		_, _, err := Normalize(raw)
		want := n == 11 || n == 14
		if (err == nil) != want {
			t.Fatalf("length %d: accepted=%v want %v", n, err == nil, want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format("12345678909"); got != "123.456.789-09" {
		t.Fatalf("cpf: %s", got)
	}
	if got := Format("12345678000195"); got != "12.345.678/0001-95" {
		t.Fatalf("cnpj: %s", got)
	}
	if got := Format("123"); got != "123" {
		t.Fatalf("other: %s", got)
	}
}

func TestIsCPF(t *testing.T) {
	if !IsCPF("12345678909") {
		t.Fatal("expected valid")
	}
	if IsCPF("123.456.789-09") {
		t.Fatal("formatted value must be rejected")
	}
	if IsCPF("1234567890") {
		t.Fatal("short value must be rejected")
	}
}

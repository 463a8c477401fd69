// Package nfse contém catálogos, validações e composição de identificadores
// do layout nacional da NFS-e (Sefin Nacional).
package nfse

import (
	"fmt"
	"strings"
)

// Tipos de inscrição federal (tpInsc no Id da DPS).
const (
	TipoInscricaoCPF  = "1"
	TipoInscricaoCNPJ = "2"
)

// SanitizeDocument remove tudo que não for dígito de um CPF/CNPJ.
func SanitizeDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IdentificarDocumento classifica um documento como CPF ou CNPJ pelo tamanho
// após a sanitização. Qualquer outro tamanho é erro de entrada, nunca coagido.
func IdentificarDocumento(doc string) (tipoInscricao string, digits string, err error) {
	digits = SanitizeDocument(doc)
	switch len(digits) {
	case 11:
		return TipoInscricaoCPF, digits, nil
	case 14:
		return TipoInscricaoCNPJ, digits, nil
	default:
		return "", "", fmt.Errorf("nfse: documento inválido %q (esperado CPF com 11 ou CNPJ com 14 dígitos)", doc)
	}
}

// ValidarCodigoIBGE exige exatamente 7 dígitos (código de município IBGE).
func ValidarCodigoIBGE(codigo string) (string, error) {
	c := strings.TrimSpace(codigo)
	if len(c) != 7 || SanitizeDocument(c) != c {
		return "", fmt.Errorf("nfse: código IBGE inválido %q (esperados 7 dígitos)", codigo)
	}
	return c, nil
}

// ValidarCEP aceita apenas CEPs com 8 dígitos após sanitização.
func ValidarCEP(cep string) (string, bool) {
	c := SanitizeDocument(cep)
	if len(c) != 8 {
		return "", false
	}
	return c, true
}

package nfse

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoverAcentos normaliza texto livre para ASCII (NFD + remoção de marcas),
// usado na representação gráfica da nota e em comparações de rótulos.
func RemoverAcentos(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Truncar corta o texto no limite máximo do schema, preservando o conteúdo
// inicial. Campos com limite máximo truncam; obrigatórios ausentes rejeitam.
func Truncar(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

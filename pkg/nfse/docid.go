package nfse

import (
	"fmt"
	"regexp"
)

// Larguras fixas do identificador da DPS no layout nacional:
// "DPS" + cMunEmi(7) + tpInsc(1) + inscrição(14) + série(5) + número(15) = 45.
const (
	dpsIDPrefix    = "DPS"
	eventoIDPrefix = "PRE"

	// Código do evento de cancelamento (e101101) usado no Id do pedido de registro.
	EventoCancelamento = "101101"

	// Tamanho da chave de acesso atribuída pela Sefin Nacional.
	ChaveAcessoLen = 50
)

var rxDPSID = regexp.MustCompile(`^DPS[0-9]{42}$`)

// DPSID compõe o identificador posicional da DPS.
// Todos os campos são validados: município IBGE com 7 dígitos, documento com
// 11 ou 14 dígitos (zero-padded a 14), série e número positivos.
func DPSID(codigoIBGE, documento string, serie, numero int64) (string, error) {
	cmun, err := ValidarCodigoIBGE(codigoIBGE)
	if err != nil {
		return "", err
	}
	tpInsc, digits, err := IdentificarDocumento(documento)
	if err != nil {
		return "", err
	}
	if serie <= 0 || serie > 99999 {
		return "", fmt.Errorf("nfse: série %d fora do intervalo 1..99999", serie)
	}
	if numero <= 0 {
		return "", fmt.Errorf("nfse: número da DPS deve ser positivo (recebido %d)", numero)
	}
	id := fmt.Sprintf("%s%s%s%014s%05d%015d", dpsIDPrefix, cmun, tpInsc, digits, serie, numero)
	if !rxDPSID.MatchString(id) {
		return "", fmt.Errorf("nfse: identificador composto inválido %q", id)
	}
	return id, nil
}

// EventoID compõe o identificador do pedido de registro de evento de
// cancelamento: "PRE" + chave de acesso (50) + código do evento (6) + nPedReg (3).
func EventoID(chaveAcesso string, nPedReg int) (string, error) {
	if len(chaveAcesso) != ChaveAcessoLen {
		return "", fmt.Errorf("nfse: chave de acesso com %d caracteres (esperados %d)", len(chaveAcesso), ChaveAcessoLen)
	}
	if nPedReg < 1 || nPedReg > 999 {
		return "", fmt.Errorf("nfse: nPedRegEvento %d fora do intervalo 1..999", nPedReg)
	}
	return fmt.Sprintf("%s%s%s%03d", eventoIDPrefix, chaveAcesso, EventoCancelamento, nPedReg), nil
}

// FormatarSerie devolve a série com 5 dígitos, como exigido na tag <serie>.
func FormatarSerie(serie int64) string {
	return fmt.Sprintf("%05d", serie)
}

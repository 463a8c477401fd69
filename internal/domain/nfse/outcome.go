// Package nfse (domínio): tabela de decisão do desfecho de uma transmissão.
//
// O status HTTP e os erros estruturados da Sefin são sinais independentes e
// são combinados explicitamente aqui: a rejeição "DPS repetida" prevalece
// mesmo sobre uma resposta com cara de sucesso.
package nfse

import (
	"strings"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// Resultado é o desfecho bruto de uma entrega: transporte (status HTTP) e
// protocolo (erros estruturados, chave, XML final) lado a lado.
type Resultado struct {
	HTTPStatus  int
	IDDps       string
	ChaveAcesso string
	XMLNfse     string
	Erros       []entity.ErroSefin
	Mensagem    string
}

// Sucesso2xx indica desfecho de transporte aceitável (200/201).
func (r Resultado) Sucesso2xx() bool {
	return r.HTTPStatus == 200 || r.HTTPStatus == 201
}

// DPSRepetida detecta o código E0014 nos erros estruturados e, como a Sefin
// nem sempre estrutura a rejeição, também como substring da mensagem livre.
func DPSRepetida(r Resultado) bool {
	for _, e := range r.Erros {
		if strings.EqualFold(strings.TrimSpace(e.Codigo), pkgnfse.CodigoDPSRepetida) {
			return true
		}
		if strings.Contains(strings.ToUpper(e.Mensagem), pkgnfse.CodigoDPSRepetida) {
			return true
		}
	}
	return strings.Contains(strings.ToUpper(r.Mensagem), pkgnfse.CodigoDPSRepetida)
}

// ProximoEstado aplica a tabela de decisão do ciclo de vida:
//
//	DPS repetida (qualquer status HTTP)        → retry_needed
//	2xx + (XML final ou chave) + sem erros     → accepted
//	qualquer outro desfecho                    → error
//
// Sucesso nunca é inferido de resposta vazia: sem chave e sem XML não há nota.
func ProximoEstado(r Resultado) string {
	if DPSRepetida(r) {
		return entity.TaskStatusRetryNeeded
	}
	if r.Sucesso2xx() && (r.XMLNfse != "" || r.ChaveAcesso != "") && len(r.Erros) == 0 {
		return entity.TaskStatusAccepted
	}
	return entity.TaskStatusError
}

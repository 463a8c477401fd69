// Package nfse implementa a geração dos XMLs do layout nacional da NFS-e
// (DPS e pedido de registro de evento) e a troca com a Sefin Nacional.
package nfse

import (
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
)

// Namespace oficial do layout nacional NFS-e.
const NamespaceNFSe = "http://www.sped.fazenda.gov.br/nfse"

// Versão do layout declarada no atributo versao da raiz.
const VersaoLayout = "1.00"

// Tags assináveis (elemento com atributo Id referenciado pela assinatura).
const (
	TagInfDPS    = "infDPS"
	TagInfPedReg = "infPedReg"
)

// DPSBuildContext reúne tudo que o builder precisa para montar a DPS.
// O intent é imutável por tentativa; série/número vêm do contador durável.
type DPSBuildContext struct {
	Emitter *entity.Emitter
	Client  *entity.Client
	Intent  entity.ServiceIntent
	Serie   int64
	Numero  int64

	Ambiente string // tpAmb: "1" produção, "2" homologação
	VerAplic string // versão da aplicação declarada no cabeçalho
}

// EventoBuildContext reúne os dados do pedido de registro de cancelamento.
type EventoBuildContext struct {
	Emitter       *entity.Emitter
	ChaveAcesso   string
	Justificativa string
	CMotivo       string // 1=Erro, 2=Serviço não prestado, 9=Outros
	NPedReg       int    // sequência de registro do evento (1..999)

	Ambiente string
	VerAplic string
}

package nfse

import (
	"fmt"
	"time"

	"github.com/beevik/etree"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// EventoBuilderService monta o pedido de registro do evento de cancelamento
// (e101101) de uma NFS-e já autorizada.
type EventoBuilderService struct{}

func NewEventoBuilderService() *EventoBuilderService {
	return &EventoBuilderService{}
}

// Build gera o XML pedRegEvento (sem assinatura) para a chave de acesso dada.
func (s *EventoBuilderService) Build(ctx *EventoBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Emitter == nil {
		return nil, fmt.Errorf("%w: contexto incompleto (emissor)", domain.ErrSchema)
	}
	if ctx.Justificativa == "" {
		return nil, fmt.Errorf("%w: justificativa do cancelamento é obrigatória", domain.ErrSchema)
	}
	cMotivo := ctx.CMotivo
	if cMotivo == "" {
		cMotivo = pkgnfse.MotivoOutros
	}
	if !pkgnfse.MotivoValido(cMotivo) {
		return nil, fmt.Errorf("%w: cMotivo %q não reconhecido", domain.ErrInvalidInput, cMotivo)
	}
	nPedReg := ctx.NPedReg
	if nPedReg == 0 {
		nPedReg = 1
	}
	infID, err := pkgnfse.EventoID(ctx.ChaveAcesso, nPedReg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	tpInsc, docAutor, err := pkgnfse.IdentificarDocumento(ctx.Emitter.CNPJ)
	if err != nil {
		return nil, fmt.Errorf("%w: documento do autor do evento: %v", domain.ErrInvalidInput, err)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("pedRegEvento")
	root.CreateAttr("xmlns", NamespaceNFSe)
	root.CreateAttr("versao", VersaoLayout)

	inf := root.CreateElement(TagInfPedReg)
	inf.CreateAttr("Id", infID)

	ambiente := ctx.Ambiente
	if ambiente == "" {
		ambiente = pkgnfse.AmbienteProducao
	}
	addText(inf, "tpAmb", ambiente)
	addText(inf, "verAplic", verAplicOuPadrao(ctx.VerAplic))
	addText(inf, "dhEvento", time.Now().In(fusoEmissao).Truncate(time.Second).Format("2006-01-02T15:04:05-07:00"))
	if tpInsc == pkgnfse.TipoInscricaoCNPJ {
		addText(inf, "CNPJAutor", docAutor)
	} else {
		addText(inf, "CPFAutor", docAutor)
	}
	addText(inf, "chNFSe", ctx.ChaveAcesso)
	addText(inf, "nPedRegEvento", fmt.Sprintf("%03d", nPedReg))

	ev := inf.CreateElement("e101101")
	addText(ev, "xDesc", "Cancelamento de NFS-e")
	addText(ev, "cMotivo", cMotivo)
	addText(ev, "xMotivo", pkgnfse.Truncar(ctx.Justificativa, maxJustificativa))

	return doc.WriteToBytes()
}

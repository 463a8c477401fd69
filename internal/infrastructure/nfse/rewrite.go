package nfse

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// RemoverAssinatura elimina todos os elementos Signature do envelope. A
// assinatura antiga cobre o Id anterior e fica inválida após a reescrita.
func RemoverAssinatura(xmlBytes []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("%w: xml assinado ilegível: %v", domain.ErrSchema, err)
	}
	removerAssinaturaDoc(doc)
	return doc.WriteToBytes()
}

func removerAssinaturaDoc(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	var remover func(el *etree.Element)
	remover = func(el *etree.Element) {
		for _, child := range el.ChildElements() {
			if child.Tag == "Signature" {
				el.RemoveChild(child)
				continue
			}
			remover(child)
		}
	}
	remover(root)
}

// ReescreverIdentificacao regenera a identificação de uma DPS rejeitada por
// identificador repetido: remove a assinatura, recompõe o Id com a nova
// série/número e atualiza <serie> e <nDPS> no lugar. Todo o conteúdo de
// negócio (prestador, tomador, serviço, valores) permanece intocado.
//
// Devolve o XML pronto para reassinar e o novo identificador.
func ReescreverIdentificacao(xmlBytes []byte, serie, numero int64) ([]byte, string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, "", fmt.Errorf("%w: xml da DPS ilegível: %v", domain.ErrSchema, err)
	}
	removerAssinaturaDoc(doc)

	root := doc.Root()
	if root == nil || root.Tag != "DPS" {
		return nil, "", fmt.Errorf("%w: raiz esperada DPS", domain.ErrSchema)
	}
	inf := root.SelectElement(TagInfDPS)
	if inf == nil {
		return nil, "", fmt.Errorf("%w: elemento %s ausente", domain.ErrSchema, TagInfDPS)
	}

	cLocEmi := inf.SelectElement("cLocEmi")
	if cLocEmi == nil {
		return nil, "", fmt.Errorf("%w: cLocEmi ausente na DPS original", domain.ErrSchema)
	}
	prest := inf.SelectElement("prest")
	if prest == nil {
		return nil, "", fmt.Errorf("%w: prest ausente na DPS original", domain.ErrSchema)
	}
	docPrest := ""
	if el := prest.SelectElement("CNPJ"); el != nil {
		docPrest = el.Text()
	} else if el := prest.SelectElement("CPF"); el != nil {
		docPrest = el.Text()
	}

	novoID, err := pkgnfse.DPSID(cLocEmi.Text(), docPrest, serie, numero)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	inf.RemoveAttr("Id")
	inf.CreateAttr("Id", novoID)
	if el := inf.SelectElement("serie"); el != nil {
		el.SetText(pkgnfse.FormatarSerie(serie))
	}
	if el := inf.SelectElement("nDPS"); el != nil {
		el.SetText(strconv.FormatInt(numero, 10))
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, "", err
	}
	return out, novoID, nil
}

package nfse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-nacional/internal/domain/nfse"
)

// Campos do corpo JSON devolvido pela Sefin Nacional. A API mistura variantes
// de caixa e de nome entre endpoints; os campos redundantes cobrem as duas.
type erroSefinJSON struct {
	Codigo    string `json:"codigo"`
	Descricao string `json:"descricao"`
	Mensagem  string `json:"mensagem"`
	Parametro string `json:"parametro"`
}

func (e erroSefinJSON) texto() string {
	if e.Descricao != "" {
		return e.Descricao
	}
	return e.Mensagem
}

type respostaSefin struct {
	IDDps          string          `json:"idDps"`
	ChaveAcesso    string          `json:"chaveAcesso"`
	NfseXmlGZipB64 string          `json:"nfseXmlGZipB64"`
	Erros          []erroSefinJSON `json:"erros"`
	Erro           *erroSefinJSON  `json:"erro"`
	Mensagem       string          `json:"mensagem"`
}

// ParseResposta interpreta o corpo de uma resposta da Sefin e o reduz ao
// Resultado do domínio. Corpo JSON é o caminho normal; corpo XML (páginas de
// erro do gateway) cai no fallback defensivo; qualquer outra coisa vira
// mensagem livre. Nunca sucesso implícito.
func ParseResposta(httpStatus int, body []byte) domnfse.Resultado {
	res := domnfse.Resultado{HTTPStatus: httpStatus}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return res
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		var parsed respostaSefin
		if err := json.Unmarshal(trimmed, &parsed); err == nil {
			res.IDDps = parsed.IDDps
			res.ChaveAcesso = parsed.ChaveAcesso
			res.Mensagem = parsed.Mensagem
			for _, e := range parsed.Erros {
				res.Erros = append(res.Erros, entity.ErroSefin{Codigo: e.Codigo, Mensagem: e.texto()})
			}
			if parsed.Erro != nil {
				res.Erros = append(res.Erros, entity.ErroSefin{Codigo: parsed.Erro.Codigo, Mensagem: parsed.Erro.texto()})
			}
			if parsed.NfseXmlGZipB64 != "" {
				if xml, err := GunzipB64(parsed.NfseXmlGZipB64); err == nil {
					res.XMLNfse = string(xml)
				} else {
					res.Erros = append(res.Erros, entity.ErroSefin{Codigo: "LOCAL", Mensagem: "nfseXmlGZipB64 ilegível: " + err.Error()})
				}
			}
			return res
		}
	}

	if trimmed[0] == '<' {
		return parseRespostaXML(httpStatus, trimmed)
	}

	res.Mensagem = string(trimmed)
	return res
}

// parseRespostaXML cobre respostas XML inesperadas (proxy, página de erro do
// gateway). Extrai chave e erros pelo nome do elemento, sem exigir schema.
func parseRespostaXML(httpStatus int, body []byte) domnfse.Resultado {
	res := domnfse.Resultado{HTTPStatus: httpStatus, Mensagem: string(body)}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return res
	}
	root := doc.Root()
	if root == nil {
		return res
	}
	var varrer func(el *etree.Element)
	varrer = func(el *etree.Element) {
		switch strings.ToLower(el.Tag) {
		case "chaveacesso", "chnfse":
			if res.ChaveAcesso == "" {
				res.ChaveAcesso = strings.TrimSpace(el.Text())
			}
		case "erro":
			e := entity.ErroSefin{}
			if c := el.SelectElement("Codigo"); c != nil {
				e.Codigo = strings.TrimSpace(c.Text())
			}
			if d := el.SelectElement("Descricao"); d != nil {
				e.Mensagem = strings.TrimSpace(d.Text())
			}
			if e.Codigo != "" || e.Mensagem != "" {
				res.Erros = append(res.Erros, e)
			}
		}
		for _, child := range el.ChildElements() {
			varrer(child)
		}
	}
	varrer(root)
	return res
}

package nfse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// Limites de tamanho do schema nacional (campos com máximo truncam;
// obrigatórios ausentes rejeitam).
const (
	maxNomeTomador   = 115
	maxLogradouro    = 125
	maxNumeroEnd     = 60
	maxComplemento   = 60
	maxBairro        = 60
	maxDescricao     = 1000
	maxJustificativa = 255
)

// Margem de atraso aplicada ao dhEmi para absorver clock-skew entre o
// servidor local e a Sefin (emissão "no futuro" é rejeitada).
const margemClockSkew = 2 * time.Second

var (
	rxCompetencia = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	rxCTribNac    = regexp.MustCompile(`^\d{6}$`)

	fusoEmissao = mustLoadLocation("America/Sao_Paulo")
)

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("-03", -3*60*60)
	}
	return loc
}

// DPSBuilderService monta a árvore XML da DPS (sem assinatura).
type DPSBuilderService struct{}

// NewDPSBuilderService cria o serviço.
func NewDPSBuilderService() *DPSBuilderService {
	return &DPSBuilderService{}
}

// Build gera o documento DPS completo conforme o layout nacional.
// Transformação pura: (intent + emissor + tomador) → XML; nenhum I/O.
func (s *DPSBuilderService) Build(ctx *DPSBuildContext) ([]byte, error) {
	if ctx == nil || ctx.Emitter == nil || ctx.Client == nil {
		return nil, fmt.Errorf("%w: contexto incompleto (emissor/tomador)", domain.ErrSchema)
	}

	cmunEmi, err := pkgnfse.ValidarCodigoIBGE(ctx.Emitter.CodigoIBGE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	tpInsc, docPrest, err := pkgnfse.IdentificarDocumento(ctx.Emitter.CNPJ)
	if err != nil {
		return nil, fmt.Errorf("%w: documento do prestador: %v", domain.ErrInvalidInput, err)
	}
	if !rxCompetencia.MatchString(ctx.Intent.Competencia) {
		return nil, fmt.Errorf("%w: competência %q deve estar em AAAA-MM-DD", domain.ErrInvalidInput, ctx.Intent.Competencia)
	}
	if !rxCTribNac.MatchString(ctx.Intent.CTribNac) {
		return nil, fmt.Errorf("%w: cTribNac %q deve ter 6 dígitos", domain.ErrSchema, ctx.Intent.CTribNac)
	}
	if ctx.Intent.Descricao == "" {
		return nil, fmt.Errorf("%w: descrição do serviço é obrigatória", domain.ErrSchema)
	}
	if !ctx.Intent.Valor.IsPositive() {
		return nil, fmt.Errorf("%w: valor do serviço deve ser positivo", domain.ErrSchema)
	}

	infID, err := pkgnfse.DPSID(cmunEmi, docPrest, ctx.Serie, ctx.Numero)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	root := doc.CreateElement("DPS")
	root.CreateAttr("xmlns", NamespaceNFSe)
	root.CreateAttr("versao", VersaoLayout)

	inf := root.CreateElement(TagInfDPS)
	inf.CreateAttr("Id", infID)

	// ---- cabeçalho ----
	ambiente := ctx.Ambiente
	if ambiente == "" {
		ambiente = pkgnfse.AmbienteProducao
	}
	addText(inf, "tpAmb", ambiente)
	addText(inf, "dhEmi", s.dhEmi(ctx.Intent.DataEmissao))
	addText(inf, "verAplic", verAplicOuPadrao(ctx.VerAplic))
	addText(inf, "serie", pkgnfse.FormatarSerie(ctx.Serie))
	addText(inf, "nDPS", strconv.FormatInt(ctx.Numero, 10))
	addText(inf, "dCompet", ctx.Intent.Competencia)
	addText(inf, "tpEmit", "1") // emitente = prestador
	addText(inf, "cLocEmi", cmunEmi)

	// ---- prestador ----
	prest := inf.CreateElement("prest")
	if tpInsc == pkgnfse.TipoInscricaoCNPJ {
		addText(prest, "CNPJ", docPrest)
	} else {
		addText(prest, "CPF", docPrest)
	}
	if ctx.Emitter.Email != "" {
		addText(prest, "email", ctx.Emitter.Email)
	}
	opSimp := pkgnfse.MapearOpSimpNac(ctx.Emitter.RegimeTributacao)
	regTrib := prest.CreateElement("regTrib")
	addText(regTrib, "opSimpNac", opSimp)
	if opSimp == pkgnfse.OpSimpOptanteME {
		addText(regTrib, "regApTribSN", "1")
	}
	addText(regTrib, "regEspTrib", "0")

	// ---- tomador (omitido por inteiro para o sentinela não identificado) ----
	if !ctx.Client.NaoIdentificado {
		if err := s.writeTomador(inf, ctx.Client); err != nil {
			return nil, err
		}
	}

	// ---- serviço ----
	serv := inf.CreateElement("serv")
	addText(serv.CreateElement("locPrest"), "cLocPrestacao", cmunEmi)
	cServ := serv.CreateElement("cServ")
	addText(cServ, "cTribNac", ctx.Intent.CTribNac)
	addText(cServ, "xDescServ", pkgnfse.Truncar(ctx.Intent.Descricao, maxDescricao))

	// ---- valores ----
	s.writeValores(inf, ctx.Intent, opSimp)

	return doc.WriteToBytes()
}

// writeTomador monta o bloco <toma>. O endereço é tudo-ou-nada: só entra
// quando IBGE (7) e CEP (8) são ambos válidos, nunca meio preenchido.
func (s *DPSBuilderService) writeTomador(inf *etree.Element, client *entity.Client) error {
	tpInsc, docToma, err := pkgnfse.IdentificarDocumento(client.Documento())
	if err != nil {
		return fmt.Errorf("%w: documento do tomador: %v", domain.ErrSchema, err)
	}
	if client.Nome == "" {
		return fmt.Errorf("%w: nome do tomador é obrigatório", domain.ErrSchema)
	}

	toma := inf.CreateElement("toma")
	if tpInsc == pkgnfse.TipoInscricaoCNPJ {
		addText(toma, "CNPJ", docToma)
	} else {
		addText(toma, "CPF", docToma)
	}
	addText(toma, "xNome", pkgnfse.Truncar(client.Nome, maxNomeTomador))

	cmun, ibgeOK := client.CodigoIBGE, false
	if c, err := pkgnfse.ValidarCodigoIBGE(client.CodigoIBGE); err == nil {
		cmun, ibgeOK = c, true
	}
	cep, cepOK := pkgnfse.ValidarCEP(client.CEP)

	if ibgeOK && cepOK {
		end := toma.CreateElement("end")
		endNac := end.CreateElement("endNac")
		addText(endNac, "cMun", cmun)
		addText(endNac, "CEP", cep)

		logradouro := client.Logradouro
		if logradouro == "" {
			logradouro = "NAO INFORMADO"
		}
		numero := client.Numero
		if numero == "" {
			numero = "S/N"
		}
		addText(end, "xLgr", pkgnfse.Truncar(logradouro, maxLogradouro))
		addText(end, "nro", pkgnfse.Truncar(numero, maxNumeroEnd))
		if client.Complemento != "" {
			addText(end, "xCpl", pkgnfse.Truncar(client.Complemento, maxComplemento))
		}
		bairro := client.Bairro
		if bairro == "" {
			bairro = "NAO INFORMADO"
		}
		addText(end, "xBairro", pkgnfse.Truncar(bairro, maxBairro))
	}
	return nil
}

// writeValores monta o bloco de valores e tributação municipal.
// pAliq é omitida para optante do Simples Nacional sem retenção; nesse regime
// entra pTotTribSN, caso contrário indTotTrib=0.
func (s *DPSBuilderService) writeValores(inf *etree.Element, intent entity.ServiceIntent, opSimp string) {
	valores := inf.CreateElement("valores")
	addText(valores.CreateElement("vServPrest"), "vServ", intent.Valor.Round(2).StringFixed(2))

	trib := valores.CreateElement("trib")
	tribMun := trib.CreateElement("tribMun")
	addText(tribMun, "tribISSQN", "1")
	if intent.ISSRetido {
		addText(tribMun, "tpRetISSQN", pkgnfse.ISSQNRetido)
	} else {
		addText(tribMun, "tpRetISSQN", pkgnfse.ISSQNNaoRetido)
	}

	podeEnviarAliq := !(opSimp == pkgnfse.OpSimpOptanteME && !intent.ISSRetido)
	if podeEnviarAliq && intent.Aliquota.IsPositive() {
		addText(tribMun, "pAliq", normalizarAliquota(intent.Aliquota).StringFixed(2))
	}

	totTrib := trib.CreateElement("totTrib")
	if opSimp == pkgnfse.OpSimpOptanteME {
		addText(totTrib, "pTotTribSN", normalizarAliquota(intent.Aliquota).StringFixed(2))
	} else {
		addText(totTrib, "indTotTrib", "0")
	}
}

// normalizarAliquota leva a alíquota a percentual 0–100: insumos em fração
// (0.05) são escalados ×100; insumos já percentuais (5) ficam como estão.
func normalizarAliquota(aliq decimal.Decimal) decimal.Decimal {
	if !aliq.IsPositive() {
		return decimal.Zero
	}
	if aliq.LessThan(decimal.NewFromInt(1)) {
		return aliq.Mul(decimal.NewFromInt(100))
	}
	return aliq
}

// dhEmi formata o instante de emissão com precisão de segundos e a margem de
// clock-skew. Data explícita inválida cai no relógio local, como no fluxo de
// reemissão manual.
func (s *DPSBuilderService) dhEmi(dataEmissao string) string {
	if dataEmissao != "" {
		if dt, err := time.Parse(time.RFC3339, dataEmissao); err == nil {
			return dt.Truncate(time.Second).Format("2006-01-02T15:04:05-07:00")
		}
		if dt, err := time.ParseInLocation("2006-01-02", dataEmissao, fusoEmissao); err == nil {
			return dt.Format("2006-01-02T15:04:05-07:00")
		}
	}
	return time.Now().In(fusoEmissao).Add(-margemClockSkew).Truncate(time.Second).Format("2006-01-02T15:04:05-07:00")
}

func addText(parent *etree.Element, tag, text string) {
	parent.CreateElement(tag).SetText(text)
}

// verAplicOuPadrao aplica a versão de aplicação padrão do layout quando a
// configuração não define outra.
func verAplicOuPadrao(verAplic string) string {
	if verAplic == "" {
		return "1.0.230"
	}
	return verAplic
}

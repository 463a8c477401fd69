// Package pdf implementa a representação gráfica local da NFS-e (DANFSe de
// contingência), usada enquanto o PDF oficial do ADN não está disponível.
//
// Layout da página A4:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: Razão Social + CNPJ  │  Série/Número DPS + Data     │
//	│  ───────────────────────────────────────────────────────── │
//	│  PRESTADOR: município / IM / email                           │
//	│  TOMADOR: nome + CPF/CNPJ                                    │
//	│  ───────────────────────────────────────────────────────── │
//	│  SERVIÇO: descrição + código de tributação                   │
//	│  VALORES: valor do serviço / ISS retido                      │
//	│  ───────────────────────────────────────────────────────── │
//	│  FOOTER: chave de acesso + QR de consulta + aviso            │
//	└─────────────────────────────────────────────────────────────┘
package pdf

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/code"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// URL pública de consulta da NFS-e pela chave de acesso (vai no QR).
const consultaPublicaURL = "https://www.nfse.gov.br/consultapublica/?chave="

var (
	colorPrimary = &props.Color{Red: 16, Green: 84, Blue: 60}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// DANFSeRenderer gera o PDF de contingência com Maroto v2.
type DANFSeRenderer struct{}

// NewDANFSeRenderer constrói o renderer.
func NewDANFSeRenderer() *DANFSeRenderer { return &DANFSeRenderer{} }

// Render gera o PDF e devolve seus bytes. Usa só os dados persistidos na
// task; não consulta a Sefin. Textos passam por RemoverAcentos porque a
// fonte padrão do core PDF não cobre o latim completo.
func (g *DANFSeRenderer) Render(
	_ context.Context,
	task *entity.Task,
	emitter *entity.Emitter,
	client *entity.Client,
) ([]byte, error) {
	if task == nil || emitter == nil {
		return nil, fmt.Errorf("pdf: task e emissor são obrigatórios")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle("DANFSe - Documento Auxiliar da NFS-e", true).
		WithAuthor(limpar(emitter.RazaoSocial), true).
		Build()

	m := maroto.New(cfg)

	m.AddRows(headerRow(task, emitter))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(prestadorRow(emitter))
	m.AddRows(tomadorRow(client))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(servicoRows(task)...)
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(valoresRow(task))

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(footerRows(task)...)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: gerar documento: %w", err)
	}
	return doc.GetBytes(), nil
}

// headerRow: razão social + CNPJ (esq) e série/número + data (dir).
func headerRow(task *entity.Task, emitter *entity.Emitter) core.Row {
	numero := fmt.Sprintf("Série %s  Nº %d", pkgnfse.FormatarSerie(task.DPS.Serie), task.DPS.Numero)
	data := task.CreatedAt.Format("02/01/2006")

	return row.New(18).Add(
		col.New(7).Add(
			text.New(limpar(emitter.RazaoSocial), props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New("CNPJ: "+emitter.CNPJ, props.Text{
				Size: 9, Top: 9, Color: colorGray,
			}),
		),
		col.New(5).Add(
			text.New("NFS-e - NOTA FISCAL DE SERVICO ELETRONICA", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right,
				Color: colorPrimary, Top: 1,
			}),
			text.New(numero, props.Text{
				Style: fontstyle.Bold, Size: 11, Align: align.Right, Top: 7,
			}),
			text.New("Data: "+data, props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func prestadorRow(emitter *entity.Emitter) core.Row {
	return row.New(12).Add(
		col.New(12).Add(
			text.New("PRESTADOR DO SERVICO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(fmt.Sprintf("Municipio IBGE: %s   |   Inscricao Municipal: %s   |   Email: %s",
				nonEmpty(emitter.CodigoIBGE, "-"),
				nonEmpty(emitter.InscricaoMunicipal, "-"),
				nonEmpty(limpar(emitter.Email), "-"),
			), props.Text{Size: 8, Top: 7, Color: colorGray}),
		),
	)
}

func tomadorRow(client *entity.Client) core.Row {
	nome := "TOMADOR NAO IDENTIFICADO"
	doc := "-"
	if client != nil && !client.NaoIdentificado {
		nome = limpar(client.Nome)
		doc = client.Documento()
	}
	return row.New(14).Add(
		col.New(12).Add(
			text.New("TOMADOR DO SERVICO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New(nome, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New("CPF/CNPJ: "+doc, props.Text{Size: 8, Top: 12, Color: colorGray}),
		),
	)
}

func servicoRows(task *entity.Task) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("DISCRIMINACAO DO SERVICO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}
	descricao := limpar(task.Intent.Descricao)
	for _, chunk := range splitEvery(descricao, 110) {
		rows = append(rows, row.New(4).Add(col.New(12).Add(
			text.New(chunk, props.Text{Size: 8, Top: 0.5, Left: 1}),
		)))
	}
	rows = append(rows, row.New(6).Add(col.New(12).Add(
		text.New(fmt.Sprintf("Codigo de tributacao nacional: %s   |   Competencia: %s",
			task.Intent.CTribNac, task.Intent.Competencia),
			props.Text{Size: 8, Top: 1, Color: colorGray}),
	)))
	return rows
}

func valoresRow(task *entity.Task) core.Row {
	retido := "Nao"
	if task.Intent.ISSRetido {
		retido = "Sim"
	}
	return row.New(14).Add(
		col.New(6).Add(
			text.New("VALOR DO SERVICO", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
			text.New("R$ "+task.Intent.Valor.Round(2).StringFixed(2), props.Text{
				Style: fontstyle.Bold, Size: 12, Top: 7,
			}),
		),
		col.New(6).Add(
			text.New("ISS RETIDO", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(retido, props.Text{Size: 10, Align: align.Right, Top: 7}),
		),
	)
}

// footerRows: chave de acesso em fragmentos + QR de consulta + aviso de
// contingência.
func footerRows(task *entity.Task) []core.Row {
	rows := []core.Row{
		row.New(6).Add(col.New(12).Add(
			text.New("INFORMACOES DA NFS-e NACIONAL", props.Text{
				Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1,
			}),
		)),
	}

	chave := task.ChaveAcesso()
	if chave != "" {
		rows = append(rows, row.New(5).Add(col.New(12).Add(
			text.New("Chave de acesso:", props.Text{Style: fontstyle.Bold, Size: 7, Top: 1}),
		)))
		for _, chunk := range splitEvery(chave, 80) {
			rows = append(rows, row.New(4).Add(col.New(12).Add(
				text.New(chunk, props.Text{Size: 7, Color: colorGray, Top: 0.5, Left: 2}),
			)))
		}
		rows = append(rows, row.New(3))
		rows = append(rows, row.New(45).Add(
			col.New(4).Add(code.NewQr(consultaPublicaURL+chave, props.Rect{
				Percent: 95,
				Center:  true,
			})),
			col.New(8).Add(
				text.New("Consulte a autenticidade desta NFS-e\nno portal nacional pela chave de acesso.", props.Text{
					Size: 8, Top: 4, Left: 3, Color: colorGray,
				}),
				text.New("Documento auxiliar gerado em contingencia.\nO DANFSe oficial e emitido pelo ADN.", props.Text{
					Style: fontstyle.Bold, Size: 9, Top: 22, Left: 3, Color: colorPrimary,
				}),
			),
		))
	} else {
		rows = append(rows, row.New(10).Add(col.New(12).Add(
			text.New("NFS-e ainda sem chave de acesso atribuida pela Sefin Nacional.", props.Text{
				Style: fontstyle.Bold, Size: 9, Align: align.Center, Color: colorPrimary, Top: 2,
			}),
		)))
	}

	rows = append(rows, row.New(8).Add(col.New(12).Add(
		text.New(
			"Representacao grafica sem valor fiscal proprio. O documento fiscal e o XML "+
				"autorizado pela Sefin Nacional; conserve-o como suporte.",
			props.Text{Size: 6.5, Color: colorGray, Top: 2},
		),
	)))
	return rows
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// limpar remove acentos; a fonte embutida do gerador não cobre o latim
// estendido completo.
func limpar(s string) string {
	return pkgnfse.RemoverAcentos(s)
}

// splitEvery divide s em pedaços de até n caracteres.
func splitEvery(s string, n int) []string {
	var parts []string
	for len(s) > n {
		parts = append(parts, s[:n])
		s = s[n:]
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

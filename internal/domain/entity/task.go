package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ciclo de vida de uma task de emissão:
//
//	pending → accepted | error | retry_needed
//	retry_needed → pending (após regeneração de série/número)
//	accepted → canceled (somente com chave de acesso)
//
// error e canceled são terminais para o núcleo; o operador pode descartar ou
// reenviar manualmente.
const (
	TaskStatusPending     = "pending"
	TaskStatusAccepted    = "accepted"
	TaskStatusRetryNeeded = "retry_needed"
	TaskStatusError       = "error"
	TaskStatusCanceled    = "canceled"
)

// ServiceIntent é a carga semântica de uma nota: imutável depois de entregue
// ao builder para uma tentativa. A alíquota chega resolvida pelo colaborador
// de apuração; o núcleo a trata como insumo opaco.
type ServiceIntent struct {
	Valor         decimal.Decimal
	Descricao     string
	CTribNac      string // código nacional de tributação (6 dígitos)
	Competencia   string // AAAA-MM-DD
	PaisPrestacao string
	ISSRetido     bool
	Aliquota      decimal.Decimal // fração (0.05) ou percentual (5); o builder normaliza
	DataEmissao   string          // opcional, ISO-8601
}

// DPSRef identifica a tentativa corrente: série/número consumidos e o Id
// posicional composto. Uma regeneração sempre produz um DPSRef novo.
type DPSRef struct {
	Serie  int64
	Numero int64
	ID     string
}

// Transmissao guarda o desfecho bruto da última entrega à Sefin. Mantido
// append-only por tentativa: o XML assinado antigo fica para auditoria.
type Transmissao struct {
	HTTPStatus  int
	RawResponse string
	XMLNfse     string // XML final autorizado (descompactado de nfseXmlGZipB64)
	PDFBase64   string // DANFSe oficial, quando já disponível
	IDDps       string
	ChaveAcesso string
	Erros       []ErroSefin
	SentAt      time.Time
}

// ErroSefin é um erro estruturado devolvido pela Sefin Nacional.
type ErroSefin struct {
	Codigo   string
	Mensagem string
}

// Task é a unidade de trabalho do motor de emissão.
type Task struct {
	ID          string
	UserID      string
	EmitterID   string
	ClientID    string
	Status      string
	Intent      ServiceIntent
	DPS         DPSRef
	XMLAssinado string // envelope assinado da tentativa corrente
	Transmit    *Transmissao
	CancelEvent *Transmissao // desfecho do evento de cancelamento
	ErrorMsg    string
	CreatedAt   time.Time
	SentAt      *time.Time
	CanceledAt  *time.Time
	ErrorAt     *time.Time
	UpdatedAt   time.Time
}

// ChaveAcesso devolve a chave atribuída pela Sefin, se houver.
func (t *Task) ChaveAcesso() string {
	if t.Transmit == nil {
		return ""
	}
	return t.Transmit.ChaveAcesso
}

// PodeCancelar: só notas aceitas e com chave de acesso.
func (t *Task) PodeCancelar() bool {
	return t.Status == TaskStatusAccepted && t.ChaveAcesso() != ""
}

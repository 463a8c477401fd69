// Package notas orquestra o ciclo de vida da emissão de NFS-e:
//
//	intent → série/número → DPS XML → assinatura → task pendente
//	pending → transmissão → accepted | error | retry_needed
//	retry_needed → regeneração (nova série/número) → pending
//	accepted → evento de cancelamento → canceled
package notas

import (
	"context"
	"crypto/tls"

	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-nacional/internal/domain/nfse"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
)

// Config reúne os parâmetros de emissão. SerieEmissao numera as tentativas
// originais; SerieRetry numera as regenerações após rejeição por
// identificador repetido, para que as duas numerações nunca colidam.
type Config struct {
	Ambiente     string // tpAmb: "1" produção, "2" homologação
	VerAplic     string
	SerieEmissao int64
	SerieRetry   int64
}

// TxRunner executa fn com repositórios atados a uma transação única.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		taskRepo repository.TaskRepository,
		seqRepo repository.SequenceRepository,
	) error) error
}

// SefinTransmitter é o canal de saída para a Sefin Nacional.
type SefinTransmitter interface {
	Enviar(ctx context.Context, xmlAssinado []byte) (domnfse.Resultado, string, error)
	EnviarEvento(ctx context.Context, eventoXML []byte, chaveAcesso string) (domnfse.Resultado, string, error)
	BaixarDANFSe(ctx context.Context, chaveAcesso string) (string, error)
}

// TransmitterFactory constrói o transmissor com o certificado do emissor.
// Cada emissor usa a própria credencial no mTLS.
type TransmitterFactory func(cert tls.Certificate) SefinTransmitter

// DANFSeRenderer gera a representação gráfica de contingência.
type DANFSeRenderer interface {
	Render(ctx context.Context, task *entity.Task, emitter *entity.Emitter, client *entity.Client) ([]byte, error)
}

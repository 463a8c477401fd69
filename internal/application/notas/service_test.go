package notas

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	domnfse "github.com/jhoicas/nfse-nacional/internal/domain/nfse"
	"github.com/jhoicas/nfse-nacional/internal/domain/repository"
	infranfse "github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse"
)

// --- fakes ---

type fakeTaskRepo struct {
	tasks   map[string]*entity.Task
	updates int
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: map[string]*entity.Task{}}
}

func (f *fakeTaskRepo) Create(_ context.Context, task *entity.Task) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, id string) (*entity.Task, error) {
	return f.tasks[id], nil
}

func (f *fakeTaskRepo) Update(_ context.Context, task *entity.Task) error {
	if _, ok := f.tasks[task.ID]; !ok {
		return domain.ErrNotFound
	}
	f.tasks[task.ID] = task
	f.updates++
	return nil
}

func (f *fakeTaskRepo) Delete(_ context.Context, id, _ string) error {
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskRepo) ListByStatus(_ context.Context, status string, limit int) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, t := range f.tasks {
		if t.Status == status && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) ListAcceptedWithoutDANFSe(_ context.Context, limit int) ([]*entity.Task, error) {
	var out []*entity.Task
	for _, t := range f.tasks {
		if t.Status == entity.TaskStatusAccepted && t.Transmit != nil && t.Transmit.PDFBase64 == "" && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeEmitterRepo struct{ emitter *entity.Emitter }

func (f *fakeEmitterRepo) GetByID(_ context.Context, id string) (*entity.Emitter, error) {
	if f.emitter != nil && f.emitter.ID == id {
		return f.emitter, nil
	}
	return nil, nil
}

func (f *fakeEmitterRepo) GetByIDForUser(_ context.Context, id, userID string) (*entity.Emitter, error) {
	if f.emitter != nil && f.emitter.ID == id && f.emitter.UserID == userID {
		return f.emitter, nil
	}
	return nil, nil
}

type fakeClientRepo struct {
	client    *entity.Client
	sentinela *entity.Client
}

func (f *fakeClientRepo) GetByID(_ context.Context, id string) (*entity.Client, error) {
	if f.client != nil && f.client.ID == id {
		return f.client, nil
	}
	return nil, nil
}

func (f *fakeClientRepo) GetNaoIdentificado(_ context.Context, _, _ string) (*entity.Client, error) {
	return f.sentinela, nil
}

// fakeSeqRepo aloca em memória por (emissor, série), sempre crescente.
type fakeSeqRepo struct{ next map[string]int64 }

func newFakeSeqRepo() *fakeSeqRepo { return &fakeSeqRepo{next: map[string]int64{}} }

func (f *fakeSeqRepo) Next(_ context.Context, emitterID string, serie int64) (int64, error) {
	key := emitterID + "/" + strconv.FormatInt(serie, 10)
	f.next[key]++
	return f.next[key], nil
}

type fakeTxRunner struct {
	taskRepo repository.TaskRepository
	seqRepo  repository.SequenceRepository
}

func (f *fakeTxRunner) Run(ctx context.Context, fn func(repository.TaskRepository, repository.SequenceRepository) error) error {
	return fn(f.taskRepo, f.seqRepo)
}

// fakeSigner devolve o XML como está; a criptografia real tem teste próprio.
type fakeSigner struct{}

func (fakeSigner) Sign(xmlBytes []byte, _ tls.Certificate, _ string) ([]byte, error) {
	return xmlBytes, nil
}

type fakeTransmitter struct {
	res    domnfse.Resultado
	raw    string
	err    error
	pdfB64 string
	pdfErr error

	envios  int
	eventos int
}

func (f *fakeTransmitter) Enviar(_ context.Context, _ []byte) (domnfse.Resultado, string, error) {
	f.envios++
	return f.res, f.raw, f.err
}

func (f *fakeTransmitter) EnviarEvento(_ context.Context, _ []byte, _ string) (domnfse.Resultado, string, error) {
	f.eventos++
	return f.res, f.raw, f.err
}

func (f *fakeTransmitter) BaixarDANFSe(_ context.Context, _ string) (string, error) {
	return f.pdfB64, f.pdfErr
}

type fakeRenderer struct{ pdf []byte }

func (f *fakeRenderer) Render(_ context.Context, _ *entity.Task, _ *entity.Emitter, _ *entity.Client) ([]byte, error) {
	return f.pdf, nil
}

// --- fixtures ---

// certPEMFixture grava um par certificado/chave autoassinado num PEM combinado
// para o loadCertificate do serviço.
func certPEMFixture(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ACME SERVICOS LTDA:12345678000195"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "emissor.pem")
	var buf []byte
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	buf = append(buf, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})...)
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func emitterComCert(t *testing.T) *entity.Emitter {
	t.Helper()
	return &entity.Emitter{
		ID:               "emit-1",
		UserID:           "user-1",
		RazaoSocial:      "Acme Serviços Ltda",
		CNPJ:             "12345678000195",
		RegimeTributacao: "Lucro Presumido",
		CodigoIBGE:       "3550308",
		CertificadoPath:  certPEMFixture(t),
	}
}

func clientDeTeste() *entity.Client {
	return &entity.Client{
		ID:     "cli-1",
		UserID: "user-1",
		Nome:   "Cliente Exemplo SA",
		CNPJ:   "98765432000110",
	}
}

func intentDeTeste() entity.ServiceIntent {
	return entity.ServiceIntent{
		Valor:       decimal.RequireFromString("150.00"),
		Descricao:   "Consultoria em engenharia de software",
		CTribNac:    "010101",
		Competencia: "2026-08-01",
		Aliquota:    decimal.RequireFromString("0.05"),
	}
}

var cfgDeTeste = Config{
	Ambiente:     "2",
	VerAplic:     "nfse-nacional/1.0",
	SerieEmissao: 1,
	SerieRetry:   2,
}

type ambiente struct {
	taskRepo    *fakeTaskRepo
	emitterRepo *fakeEmitterRepo
	clientRepo  *fakeClientRepo
	seqRepo     *fakeSeqRepo
	txRunner    *fakeTxRunner
	emitter     *entity.Emitter
}

func novoAmbiente(t *testing.T) *ambiente {
	t.Helper()
	taskRepo := newFakeTaskRepo()
	seqRepo := newFakeSeqRepo()
	return &ambiente{
		taskRepo:    taskRepo,
		emitterRepo: &fakeEmitterRepo{emitter: emitterComCert(t)},
		clientRepo:  &fakeClientRepo{client: clientDeTeste(), sentinela: &entity.Client{ID: "cli-anon", UserID: "user-1", NaoIdentificado: true}},
		seqRepo:     seqRepo,
		txRunner:    &fakeTxRunner{taskRepo: taskRepo, seqRepo: seqRepo},
	}
}

func (a *ambiente) emitService() *EmitService {
	return NewEmitService(a.txRunner, a.emitterRepo, a.clientRepo,
		infranfse.NewDPSBuilderService(), fakeSigner{}, cfgDeTeste, zerolog.Nop())
}

// --- testes ---

func TestEmitir(t *testing.T) {
	t.Run("cria task pendente com número alocado", func(t *testing.T) {
		amb := novoAmbiente(t)
		svc := amb.emitService()

		task, err := svc.Emitir(context.Background(), EmitirInput{
			UserID: "user-1", EmitterID: "emit-1", ClientID: "cli-1", Intent: intentDeTeste(),
		})
		require.NoError(t, err)

		assert.Equal(t, entity.TaskStatusPending, task.Status)
		assert.Equal(t, int64(1), task.DPS.Serie)
		assert.Equal(t, int64(1), task.DPS.Numero)
		assert.Equal(t, "DPS355030821234567800019500001000000000000001", task.DPS.ID)
		assert.Contains(t, task.XMLAssinado, "<infDPS")
		assert.NotNil(t, amb.taskRepo.tasks[task.ID])

		// segunda emissão consome o número seguinte
		task2, err := svc.Emitir(context.Background(), EmitirInput{
			UserID: "user-1", EmitterID: "emit-1", ClientID: "cli-1", Intent: intentDeTeste(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), task2.DPS.Numero)
	})

	t.Run("tomador vazio usa o sentinela", func(t *testing.T) {
		amb := novoAmbiente(t)
		task, err := amb.emitService().Emitir(context.Background(), EmitirInput{
			UserID: "user-1", EmitterID: "emit-1", Intent: intentDeTeste(),
		})
		require.NoError(t, err)
		assert.Equal(t, "cli-anon", task.ClientID)
	})

	t.Run("emissor de outro usuário é invisível", func(t *testing.T) {
		amb := novoAmbiente(t)
		_, err := amb.emitService().Emitir(context.Background(), EmitirInput{
			UserID: "user-2", EmitterID: "emit-1", ClientID: "cli-1", Intent: intentDeTeste(),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("emissor sem certificado rejeita", func(t *testing.T) {
		amb := novoAmbiente(t)
		amb.emitterRepo.emitter.CertificadoPath = ""
		_, err := amb.emitService().Emitir(context.Background(), EmitirInput{
			UserID: "user-1", EmitterID: "emit-1", ClientID: "cli-1", Intent: intentDeTeste(),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCredencial))
	})
}

func transmitServiceCom(amb *ambiente, tr *fakeTransmitter, renderer DANFSeRenderer) *TransmitService {
	return NewTransmitService(amb.taskRepo, amb.emitterRepo, amb.clientRepo,
		func(tls.Certificate) SefinTransmitter { return tr }, renderer, zerolog.Nop())
}

func taskPendente(t *testing.T, amb *ambiente) *entity.Task {
	t.Helper()
	task, err := amb.emitService().Emitir(context.Background(), EmitirInput{
		UserID: "user-1", EmitterID: "emit-1", ClientID: "cli-1", Intent: intentDeTeste(),
	})
	require.NoError(t, err)
	return task
}

func TestTransmitir(t *testing.T) {
	chave := "12345678901234567890123456789012345678901234567890"

	t.Run("autorização aceita a task", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{
			res: domnfse.Resultado{HTTPStatus: 201, ChaveAcesso: chave, XMLNfse: "<NFSe/>"},
			raw: `{"chaveAcesso":"..."}`,
		}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))

		assert.Equal(t, entity.TaskStatusAccepted, task.Status)
		require.NotNil(t, task.Transmit)
		assert.Equal(t, chave, task.Transmit.ChaveAcesso)
		assert.Equal(t, "<NFSe/>", task.Transmit.XMLNfse)
		assert.NotNil(t, task.SentAt)
		assert.Equal(t, 1, tr.envios)
	})

	t.Run("rejeição terminal marca error com a causa", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{res: domnfse.Resultado{
			HTTPStatus: 422,
			Erros:      []entity.ErroSefin{{Codigo: "E0005", Mensagem: "schema inválido"}},
		}}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))

		assert.Equal(t, entity.TaskStatusError, task.Status)
		assert.Contains(t, task.ErrorMsg, "E0005")
		assert.NotNil(t, task.ErrorAt)
	})

	t.Run("autorização já baixa o DANFSe na mesma transmissão", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{
			res:    domnfse.Resultado{HTTPStatus: 201, ChaveAcesso: chave},
			pdfB64: base64.StdEncoding.EncodeToString([]byte("%PDF recem-autorizado")),
		}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))

		assert.Equal(t, entity.TaskStatusAccepted, task.Status)
		require.NotNil(t, task.Transmit)
		assert.Equal(t, tr.pdfB64, task.Transmit.PDFBase64)
	})

	t.Run("DANFSe indisponível não derruba a autorização", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{
			res:    domnfse.Resultado{HTTPStatus: 201, ChaveAcesso: chave},
			pdfErr: domain.ErrNotFound,
		}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))

		assert.Equal(t, entity.TaskStatusAccepted, task.Status)
		assert.Empty(t, task.Transmit.PDFBase64, "backfill periódico completa depois")
	})

	t.Run("DPS repetida agenda regeneração", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{res: domnfse.Resultado{
			HTTPStatus: 400,
			Erros:      []entity.ErroSefin{{Codigo: "E0014", Mensagem: "DPS já registrada"}},
		}}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))
		assert.Equal(t, entity.TaskStatusRetryNeeded, task.Status)
		assert.Empty(t, task.ErrorMsg)
	})

	t.Run("falha de transporte marca error com a causa", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		tr := &fakeTransmitter{err: domain.ErrTransporte}

		require.NoError(t, transmitServiceCom(amb, tr, nil).Transmitir(context.Background(), task))

		persistida := amb.taskRepo.tasks[task.ID]
		require.NotNil(t, persistida)
		assert.Equal(t, entity.TaskStatusError, persistida.Status)
		assert.NotEmpty(t, persistida.ErrorMsg)
		assert.NotNil(t, persistida.ErrorAt)
	})

	t.Run("task não pendente rejeita", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		task.Status = entity.TaskStatusAccepted

		err := transmitServiceCom(amb, &fakeTransmitter{}, nil).Transmitir(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})
}

func TestPreencherDANFSe(t *testing.T) {
	chave := "12345678901234567890123456789012345678901234567890"

	aceita := func(t *testing.T, amb *ambiente) *entity.Task {
		task := taskPendente(t, amb)
		task.Status = entity.TaskStatusAccepted
		task.Transmit = &entity.Transmissao{HTTPStatus: 201, ChaveAcesso: chave}
		return task
	}

	t.Run("PDF oficial do ADN", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := aceita(t, amb)
		tr := &fakeTransmitter{pdfB64: base64.StdEncoding.EncodeToString([]byte("%PDF oficial"))}

		require.NoError(t, transmitServiceCom(amb, tr, nil).PreencherDANFSe(context.Background(), task))
		assert.Equal(t, tr.pdfB64, task.Transmit.PDFBase64)
	})

	t.Run("indisponível cai na contingência local", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := aceita(t, amb)
		tr := &fakeTransmitter{pdfErr: domain.ErrNotFound}
		renderer := &fakeRenderer{pdf: []byte("%PDF contingencia")}

		require.NoError(t, transmitServiceCom(amb, tr, renderer).PreencherDANFSe(context.Background(), task))
		assert.Equal(t, base64.StdEncoding.EncodeToString(renderer.pdf), task.Transmit.PDFBase64)
	})

	t.Run("sem chave de acesso rejeita", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		err := transmitServiceCom(amb, &fakeTransmitter{}, nil).PreencherDANFSe(context.Background(), task)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestRegenerar(t *testing.T) {
	regenService := func(amb *ambiente) *RegenService {
		return NewRegenService(amb.txRunner, amb.emitterRepo, fakeSigner{}, cfgDeTeste, zerolog.Nop())
	}

	t.Run("cada regeneração consome um número novo na série de retry", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		idOriginal := task.DPS.ID
		svc := regenService(amb)

		task.Status = entity.TaskStatusRetryNeeded
		require.NoError(t, svc.Regenerar(context.Background(), task))

		assert.Equal(t, entity.TaskStatusPending, task.Status)
		assert.Equal(t, cfgDeTeste.SerieRetry, task.DPS.Serie)
		assert.Equal(t, int64(1), task.DPS.Numero)
		assert.NotEqual(t, idOriginal, task.DPS.ID)
		assert.Contains(t, task.XMLAssinado, "<nDPS>1</nDPS>")

		// segunda rejeição: número 2, nunca reaproveita o 1
		primeiroID := task.DPS.ID
		task.Status = entity.TaskStatusRetryNeeded
		require.NoError(t, svc.Regenerar(context.Background(), task))
		assert.Equal(t, int64(2), task.DPS.Numero)
		assert.NotEqual(t, primeiroID, task.DPS.ID)
	})

	t.Run("só tasks retry_needed", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)

		err := regenService(amb).Regenerar(context.Background(), task)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("sem XML não há o que regenerar", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)
		task.Status = entity.TaskStatusRetryNeeded
		task.XMLAssinado = ""

		err := regenService(amb).Regenerar(context.Background(), task)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestCancelar(t *testing.T) {
	chave := "12345678901234567890123456789012345678901234567890"

	cancelService := func(amb *ambiente, tr *fakeTransmitter) *CancelService {
		return NewCancelService(amb.taskRepo, amb.emitterRepo,
			infranfse.NewEventoBuilderService(), fakeSigner{},
			func(tls.Certificate) SefinTransmitter { return tr }, cfgDeTeste, zerolog.Nop())
	}

	aceita := func(t *testing.T, amb *ambiente) *entity.Task {
		task := taskPendente(t, amb)
		task.Status = entity.TaskStatusAccepted
		task.Transmit = &entity.Transmissao{HTTPStatus: 201, ChaveAcesso: chave}
		require.NoError(t, amb.taskRepo.Update(context.Background(), task))
		return task
	}

	t.Run("confirmação leva a canceled", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := aceita(t, amb)
		tr := &fakeTransmitter{res: domnfse.Resultado{HTTPStatus: 200}}

		out, err := cancelService(amb, tr).Cancelar(context.Background(), CancelarInput{
			TaskID: task.ID, UserID: "user-1", Justificativa: "Nota emitida com valor incorreto",
		})
		require.NoError(t, err)

		assert.Equal(t, entity.TaskStatusCanceled, out.Status)
		assert.NotNil(t, out.CanceledAt)
		require.NotNil(t, out.CancelEvent)
		assert.Equal(t, chave, out.CancelEvent.ChaveAcesso)
		assert.Equal(t, 1, tr.eventos)
	})

	t.Run("rejeição mantém a nota aceita", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := aceita(t, amb)
		tr := &fakeTransmitter{res: domnfse.Resultado{
			HTTPStatus: 400,
			Erros:      []entity.ErroSefin{{Codigo: "E0100", Mensagem: "evento fora do prazo"}},
		}}

		out, err := cancelService(amb, tr).Cancelar(context.Background(), CancelarInput{
			TaskID: task.ID, UserID: "user-1", Justificativa: "Serviço não realizado",
		})
		require.NoError(t, err)

		assert.Equal(t, entity.TaskStatusAccepted, out.Status)
		assert.Nil(t, out.CanceledAt)
		require.NotNil(t, out.CancelEvent)
		assert.Len(t, out.CancelEvent.Erros, 1)
	})

	t.Run("task pendente não cancela", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := taskPendente(t, amb)

		_, err := cancelService(amb, &fakeTransmitter{}).Cancelar(context.Background(), CancelarInput{
			TaskID: task.ID, UserID: "user-1", Justificativa: "qualquer",
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("task de outro usuário é invisível", func(t *testing.T) {
		amb := novoAmbiente(t)
		task := aceita(t, amb)

		_, err := cancelService(amb, &fakeTransmitter{}).Cancelar(context.Background(), CancelarInput{
			TaskID: task.ID, UserID: "user-2", Justificativa: "qualquer",
		})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

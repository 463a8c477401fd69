package nfse

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	domnfse "github.com/jhoicas/nfse-nacional/internal/domain/nfse"
)

// Endpoints nacionais de produção. Os campos do cliente permitem apontar para
// homologação ou para um servidor local.
const (
	SefinProducaoURL  = "https://sefin.nfse.gov.br/SefinNacional/nfse"
	DANFSeProducaoURL = "https://adn.nfse.gov.br/danfse"
)

const (
	timeoutTransmissao = 30 * time.Second

	// Janela curta de polling do DANFSe logo após a autorização: o ADN leva
	// alguns segundos para materializar o PDF.
	danfseTentativas = 3
	danfseIntervalo  = 2 * time.Second
)

// SefinClient fala com a Sefin Nacional por mTLS usando o certificado A1 do
// emissor. Uma instância por emissor; o transporte é reutilizado entre chamadas.
type SefinClient struct {
	BaseURL    string
	DANFSeURL  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewSefinClient monta o cliente com o certificado do emissor. Certificado
// zero (sem cadeia) resulta em TLS sem autenticação de cliente, o que os
// servidores de teste aceitam.
func NewSefinClient(cert tls.Certificate, logger zerolog.Logger) *SefinClient {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if len(cert.Certificate) > 0 {
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return &SefinClient{
		BaseURL:   SefinProducaoURL,
		DANFSeURL: DANFSeProducaoURL,
		httpClient: &http.Client{
			Timeout:   timeoutTransmissao,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		},
		logger: logger.With().Str("component", "sefin_client").Logger(),
	}
}

// Enviar entrega uma DPS assinada e devolve o desfecho interpretado mais o
// corpo bruto para auditoria. Erro de transporte sobe embrulhado em
// ErrTransporte; o registro no ciclo de vida fica com o chamador.
func (c *SefinClient) Enviar(ctx context.Context, xmlAssinado []byte) (domnfse.Resultado, string, error) {
	payload, err := GzipB64(xmlAssinado)
	if err != nil {
		return domnfse.Resultado{}, "", err
	}
	body, err := json.Marshal(map[string]string{"dpsXmlGZipB64": payload})
	if err != nil {
		return domnfse.Resultado{}, "", err
	}

	status, raw, err := c.post(ctx, c.BaseURL, body)
	if err != nil {
		return domnfse.Resultado{}, "", fmt.Errorf("%w: envio da DPS: %v", domain.ErrTransporte, err)
	}

	res := ParseResposta(status, raw)
	c.logger.Info().
		Int("http_status", status).
		Str("chave_acesso", res.ChaveAcesso).
		Int("erros", len(res.Erros)).
		Msg("resposta da Sefin ao envio da DPS")
	return res, string(raw), nil
}

// EnviarEvento entrega um pedido de registro de evento (cancelamento) da nota
// identificada pela chave de acesso.
func (c *SefinClient) EnviarEvento(ctx context.Context, eventoXML []byte, chaveAcesso string) (domnfse.Resultado, string, error) {
	payload, err := GzipB64(eventoXML)
	if err != nil {
		return domnfse.Resultado{}, "", err
	}
	body, err := json.Marshal(map[string]string{"pedidoRegistroEventoXmlGZipB64": payload})
	if err != nil {
		return domnfse.Resultado{}, "", err
	}

	url := fmt.Sprintf("%s/%s/eventos", c.BaseURL, chaveAcesso)
	status, raw, err := c.post(ctx, url, body)
	if err != nil {
		return domnfse.Resultado{}, "", fmt.Errorf("%w: envio do evento: %v", domain.ErrTransporte, err)
	}

	res := ParseResposta(status, raw)
	c.logger.Info().
		Int("http_status", status).
		Str("chave_acesso", chaveAcesso).
		Int("erros", len(res.Erros)).
		Msg("resposta da Sefin ao evento de cancelamento")
	return res, string(raw), nil
}

// BaixarDANFSe busca o PDF oficial no ADN. 404 significa "ainda não
// materializado" e entra no polling; esgotadas as tentativas devolve
// ErrNotFound para o chamador reagendar, nunca falha a emissão.
func (c *SefinClient) BaixarDANFSe(ctx context.Context, chaveAcesso string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.DANFSeURL, chaveAcesso)

	var pdfB64 string
	operacao := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		// O ADN anuncia o PDF pronto pelo Content-Type; o sniff do corpo cobre
		// proxies que reescrevem o cabeçalho.
		ehPDF := strings.HasPrefix(resp.Header.Get("Content-Type"), "application/pdf") ||
			bytes.HasPrefix(raw, []byte("%PDF"))
		switch {
		case resp.StatusCode == http.StatusOK && ehPDF:
			pdfB64 = base64.StdEncoding.EncodeToString(raw)
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("danfse ainda não disponível")
		default:
			return fmt.Errorf("danfse: resposta inesperada (status %d)", resp.StatusCode)
		}
	}

	politica := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(danfseIntervalo), danfseTentativas-1),
		ctx,
	)
	if err := backoff.Retry(operacao, politica); err != nil {
		return "", fmt.Errorf("%w: danfse da chave %s: %v", domain.ErrNotFound, chaveAcesso, err)
	}
	return pdfB64, nil
}

func (c *SefinClient) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

package notas

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jhoicas/nfse-nacional/internal/domain"
	"github.com/jhoicas/nfse-nacional/internal/domain/entity"
	"github.com/jhoicas/nfse-nacional/internal/infrastructure/nfse/signer"
)

// loadCertificate carrega o bundle de credencial do emissor (.p12/.pfx ou
// PEM) e barra certificado expirado antes de assinar ou transmitir.
func loadCertificate(emitter *entity.Emitter) (tls.Certificate, error) {
	if emitter.CertificadoPath == "" {
		return tls.Certificate{}, fmt.Errorf("%w: emissor %s sem certificado cadastrado", domain.ErrCredencial, emitter.ID)
	}
	var (
		cert tls.Certificate
		err  error
	)
	lower := strings.ToLower(emitter.CertificadoPath)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		cert, err = signer.LoadFromP12(emitter.CertificadoPath, emitter.SenhaCertificado)
	} else {
		cert, err = signer.LoadFromPEM(emitter.CertificadoPath, "")
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", domain.ErrCredencial, err)
	}
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return tls.Certificate{}, fmt.Errorf("%w: bundle sem cadeia ou sem chave privada", domain.ErrCredencial)
	}
	if _, err := signer.Validade(cert); err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: %v", domain.ErrCredencial, err)
	}
	return cert, nil
}

// Carga de certificado A1 a partir de .p12 (PKCS#12) ou par PEM.

package signer

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// LoadFromP12 carrega certificado e chave privada de um arquivo .p12/.pfx.
// A senha pode ser vazia se o arquivo não for protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("ler p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	// pkcs12.Decode devolve só o certificado folha; para a Sefin isso basta
	// tanto na assinatura quanto no mTLS.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carrega certificado e chave de arquivos PEM (separados ou
// combinados num só arquivo).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" {
		return tls.Certificate{}, nil
	}
	if keyPath == "" {
		return tls.LoadX509KeyPair(certPath, certPath)
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("carregar PEM: %w", err)
	}
	return cert, nil
}

// Validade devolve o fim da vigência do certificado e erro se já expirou.
// Certificado expirado assina, mas a Sefin rejeita; melhor barrar antes.
func Validade(cert tls.Certificate) (time.Time, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return time.Time{}, fmt.Errorf("certificado sem cadeia")
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("parsear certificado: %w", err)
		}
		leaf = parsed
	}
	if time.Now().After(leaf.NotAfter) {
		return leaf.NotAfter, fmt.Errorf("certificado expirado em %s", leaf.NotAfter.Format("2006-01-02"))
	}
	return leaf.NotAfter, nil
}

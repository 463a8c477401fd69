// Interface de assinatura digital enveloped para documentos do layout nacional.

package nfse

import "crypto/tls"

// Signer assina a subárvore identificada (infDPS ou infPedReg) e devolve o XML
// com o nó ds:Signature inserido como irmão imediato da tag assinada.
type Signer interface {
	// Sign recebe o XML sem assinatura, o certificado com chave privada e o
	// nome da tag alvo. A tag precisa existir e carregar o atributo Id.
	Sign(xmlBytes []byte, cert tls.Certificate, tagAlvo string) ([]byte, error)
}

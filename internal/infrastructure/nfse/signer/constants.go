// Constantes de assinatura XML-DSig do layout nacional NFS-e.

package signer

// Namespaces e algoritmos XMLDSig exigidos pela Sefin Nacional.
//
// SHA-1 e RSA-SHA1 são os algoritmos que o validador nacional aceita; trocar
// por SHA-256 gera rejeição de schema. A escolha é contrato externo, não nossa.
const (
	NamespaceDSig = "http://www.w3.org/2000/09/xmldsig#"

	AlgC14N    = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgRSASHA1 = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1    = "http://www.w3.org/2000/09/xmldsig#sha1"

	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Serviço de assinatura digital enveloped (XML-DSig) do layout nacional NFS-e.
// Assina o elemento identificado (infDPS ou infPedReg) e insere <Signature>
// como irmão seguinte dele, no namespace xmldsig padrão (sem prefixo).

package signer

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"

	pkgnfse "github.com/jhoicas/nfse-nacional/pkg/nfse"
)

// XMLSignerService implementa pkg/nfse.Signer com C14N 1.0 inclusivo,
// digest SHA-1 e assinatura RSA-SHA1 (PKCS#1 v1.5), como exige o validador.
type XMLSignerService struct{}

// NewXMLSignerService cria o serviço.
func NewXMLSignerService() *XMLSignerService {
	return &XMLSignerService{}
}

// Sign assina o primeiro elemento de tag tagAlvo, que deve carregar o
// atributo Id referenciado pela assinatura. A entrada nunca vem assinada:
// reassinatura exige remover a assinatura anterior antes.
func (s *XMLSignerService) Sign(xmlBytes []byte, cert tls.Certificate, tagAlvo string) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("nfse: XML vazio")
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("nfse: o certificado deve incluir chave privada RSA")
	}
	x509Cert, err := parseLeaf(cert)
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xmlBytes); err != nil {
		return nil, fmt.Errorf("nfse: parsear XML: %w", err)
	}
	alvo := localizarAlvo(doc.Root(), tagAlvo)
	if alvo == nil {
		return nil, fmt.Errorf("nfse: elemento %s não encontrado", tagAlvo)
	}
	id := alvo.SelectAttrValue("Id", "")
	if id == "" {
		return nil, fmt.Errorf("nfse: elemento %s sem atributo Id", tagAlvo)
	}

	// 1) Digest SHA-1 do subtree canônico do elemento alvo.
	canonicalAlvo, err := canonicalizarElemento(doc, alvo)
	if err != nil {
		return nil, fmt.Errorf("nfse: canonicalizar %s: %w", tagAlvo, err)
	}
	digest := sha1.Sum(canonicalAlvo)
	digestB64 := base64.StdEncoding.EncodeToString(digest[:])

	// 2) SignedInfo canônico assinado com RSA-SHA1.
	signedInfoXML := buildSignedInfo(id, digestB64)
	canonicalSignedInfo, err := canonicalizarBytes([]byte(signedInfoXML))
	if err != nil {
		return nil, fmt.Errorf("nfse: canonicalizar SignedInfo: %w", err)
	}
	signHash := sha1.Sum(canonicalSignedInfo)
	signatureValue, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("nfse: assinar SignedInfo: %w", err)
	}

	// 3) Signature completa com o certificado em KeyInfo.
	signatureXML := buildSignature(
		signedInfoXML,
		base64.StdEncoding.EncodeToString(signatureValue),
		base64.StdEncoding.EncodeToString(x509Cert.Raw),
	)

	// 4) Splice: Signature como irmão seguinte do elemento assinado.
	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(signatureXML); err != nil {
		return nil, fmt.Errorf("nfse: parsear Signature: %w", err)
	}
	parent := alvo.Parent()
	if parent == nil {
		return nil, fmt.Errorf("nfse: %s sem elemento pai", tagAlvo)
	}
	parent.InsertChildAt(alvo.Index()+1, sigDoc.Root())

	return doc.WriteToBytes()
}

func parseLeaf(cert tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("nfse: certificado sem cadeia")
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("nfse: parsear certificado: %w", err)
	}
	return parsed, nil
}

func localizarAlvo(root *etree.Element, tag string) *etree.Element {
	if root == nil {
		return nil
	}
	if root.Tag == tag {
		return root
	}
	for _, child := range root.ChildElements() {
		if found := localizarAlvo(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// canonicalizarElemento serializa o subtree do alvo como documento isolado,
// propagando o namespace default herdado da raiz, e o canonicaliza.
func canonicalizarElemento(doc *etree.Document, alvo *etree.Element) ([]byte, error) {
	copia := alvo.Copy()
	if copia.SelectAttr("xmlns") == nil {
		if root := doc.Root(); root != nil {
			if ns := root.SelectAttrValue("xmlns", ""); ns != "" {
				copia.CreateAttr("xmlns", ns)
			}
		}
	}
	sub := etree.NewDocument()
	sub.SetRoot(copia)
	raw, err := sub.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizarBytes(raw)
}

func canonicalizarBytes(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

func buildSignedInfo(id, digestB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<SignedInfo xmlns="` + NamespaceDSig + `">`)
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="#` + id + `">`)
	sb.WriteString(`<Transforms>`)
	sb.WriteString(`<Transform Algorithm="` + TransformEnveloped + `"></Transform>`)
	sb.WriteString(`<Transform Algorithm="` + AlgC14N + `"></Transform>`)
	sb.WriteString(`</Transforms>`)
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digestB64 + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(signedInfoXML, signatureValueB64, certB64 string) string {
	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDSig + `">`)
	sb.WriteString(signedInfoXML)
	sb.WriteString(`<SignatureValue>` + signatureValueB64 + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><X509Data><X509Certificate>` + certB64 + `</X509Certificate></X509Data></KeyInfo>`)
	sb.WriteString(`</Signature>`)
	return sb.String()
}

var _ pkgnfse.Signer = (*XMLSignerService)(nil)

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dpsParaAssinar = `<DPS xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">` +
	`<infDPS Id="DPS355030821234567800019500001000000000000001">` +
	`<tpAmb>2</tpAmb><serie>00001</serie><nDPS>1</nDPS>` +
	`</infDPS></DPS>`

func certificadoDeTeste(t *testing.T) tls.Certificate {
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

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestXMLSigner_Sign(t *testing.T) {
	cert := certificadoDeTeste(t)
	signed, err := NewXMLSignerService().Sign([]byte(dpsParaAssinar), cert, "infDPS")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))

	// Signature fica como irmão imediatamente após o elemento assinado.
	root := doc.Root()
	children := root.ChildElements()
	require.Len(t, children, 2)
	assert.Equal(t, "infDPS", children[0].Tag)
	assert.Equal(t, "Signature", children[1].Tag)
	assert.Equal(t, NamespaceDSig, children[1].SelectAttrValue("xmlns", ""))

	sig := children[1]
	ref := sig.FindElement("SignedInfo/Reference")
	require.NotNil(t, ref)
	assert.Equal(t, "#DPS355030821234567800019500001000000000000001", ref.SelectAttrValue("URI", ""))

	// Algoritmos obrigatórios do validador.
	assert.Equal(t, AlgC14N, sig.FindElement("SignedInfo/CanonicalizationMethod").SelectAttrValue("Algorithm", ""))
	assert.Equal(t, AlgRSASHA1, sig.FindElement("SignedInfo/SignatureMethod").SelectAttrValue("Algorithm", ""))
	assert.Equal(t, AlgSHA1, ref.FindElement("DigestMethod").SelectAttrValue("Algorithm", ""))

	transforms := ref.FindElements("Transforms/Transform")
	require.Len(t, transforms, 2)
	assert.Equal(t, TransformEnveloped, transforms[0].SelectAttrValue("Algorithm", ""))

	// O digest publicado deve bater com o SHA-1 do subtree canônico do alvo.
	canonicalAlvo, err := canonicalizarElemento(doc, children[0])
	require.NoError(t, err)
	esperado := sha1.Sum(canonicalAlvo)
	assert.Equal(t,
		base64.StdEncoding.EncodeToString(esperado[:]),
		ref.FindElement("DigestValue").Text(),
	)

	// A assinatura deve verificar com a chave pública do certificado.
	verificarAssinatura(t, sig, cert)

	// KeyInfo carrega o certificado usado.
	certB64 := sig.FindElement("KeyInfo/X509Data/X509Certificate")
	require.NotNil(t, certB64)
	der, err := base64.StdEncoding.DecodeString(certB64.Text())
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], der)
}

func verificarAssinatura(t *testing.T, sig *etree.Element, cert tls.Certificate) {
	t.Helper()

	signedInfo := sig.FindElement("SignedInfo").Copy()
	if signedInfo.SelectAttr("xmlns") == nil {
		signedInfo.CreateAttr("xmlns", NamespaceDSig)
	}
	sub := etree.NewDocument()
	sub.SetRoot(signedInfo)
	raw, err := sub.WriteToBytes()
	require.NoError(t, err)
	canonical, err := canonicalizarBytes(raw)
	require.NoError(t, err)
	hash := sha1.Sum(canonical)

	sigValue, err := base64.StdEncoding.DecodeString(sig.FindElement("SignatureValue").Text())
	require.NoError(t, err)

	pub := cert.PrivateKey.(*rsa.PrivateKey).Public().(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA1, hash[:], sigValue))
}

func TestXMLSigner_Sign_AlvoDeEvento(t *testing.T) {
	evento := `<pedRegEvento xmlns="http://www.sped.fazenda.gov.br/nfse" versao="1.00">` +
		`<infPedReg Id="PRE123"><tpAmb>2</tpAmb></infPedReg></pedRegEvento>`

	signed, err := NewXMLSignerService().Sign([]byte(evento), certificadoDeTeste(t), "infPedReg")
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signed))
	assert.NotNil(t, doc.FindElement("/pedRegEvento/Signature/SignedInfo"))
}

func TestXMLSigner_Sign_Rejeicoes(t *testing.T) {
	svc := NewXMLSignerService()
	cert := certificadoDeTeste(t)

	t.Run("XML vazio", func(t *testing.T) {
		_, err := svc.Sign(nil, cert, "infDPS")
		assert.Error(t, err)
	})

	t.Run("elemento alvo ausente", func(t *testing.T) {
		_, err := svc.Sign([]byte(`<DPS><outro Id="x"></outro></DPS>`), cert, "infDPS")
		assert.Error(t, err)
	})

	t.Run("alvo sem Id", func(t *testing.T) {
		_, err := svc.Sign([]byte(`<DPS><infDPS><tpAmb>2</tpAmb></infDPS></DPS>`), cert, "infDPS")
		assert.Error(t, err)
	})

	t.Run("certificado sem cadeia", func(t *testing.T) {
		semCadeia := tls.Certificate{PrivateKey: cert.PrivateKey}
		_, err := svc.Sign([]byte(dpsParaAssinar), semCadeia, "infDPS")
		assert.Error(t, err)
	})

	t.Run("chave não RSA", func(t *testing.T) {
		_, err := svc.Sign([]byte(dpsParaAssinar), tls.Certificate{}, "infDPS")
		assert.Error(t, err)
	})
}

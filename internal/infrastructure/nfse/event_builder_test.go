package nfse

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventoBuilder(t *testing.T) {
	chave := strings.Repeat("7", 50)

	t.Run("pedido completo", func(t *testing.T) {
		xmlBytes, err := NewEventoBuilderService().Build(&EventoBuildContext{
			Emitter:       emitterFixture(),
			ChaveAcesso:   chave,
			Justificativa: "Nota emitida com valor incorreto",
			CMotivo:       "1",
			NPedReg:       1,
			Ambiente:      "2",
			VerAplic:      "nfse-nacional/1.0",
		})
		require.NoError(t, err)

		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(xmlBytes))

		root := doc.Root()
		assert.Equal(t, "pedRegEvento", root.Tag)
		assert.Equal(t, NamespaceNFSe, root.SelectAttrValue("xmlns", ""))

		inf := doc.FindElement("/pedRegEvento/infPedReg")
		require.NotNil(t, inf)
		assert.Equal(t, "PRE"+chave+"101101001", inf.SelectAttrValue("Id", ""))

		assert.Equal(t, chave, textOf(t, doc, "/pedRegEvento/infPedReg/chNFSe"))
		assert.Equal(t, "12345678000195", textOf(t, doc, "/pedRegEvento/infPedReg/CNPJAutor"))
		assert.Equal(t, "001", textOf(t, doc, "/pedRegEvento/infPedReg/nPedRegEvento"))
		assert.Equal(t, "1", textOf(t, doc, "/pedRegEvento/infPedReg/e101101/cMotivo"))
		assert.Equal(t, "Nota emitida com valor incorreto", textOf(t, doc, "/pedRegEvento/infPedReg/e101101/xMotivo"))
	})

	t.Run("cMotivo vazio vira outros", func(t *testing.T) {
		xmlBytes, err := NewEventoBuilderService().Build(&EventoBuildContext{
			Emitter:       emitterFixture(),
			ChaveAcesso:   chave,
			Justificativa: "Serviço não realizado",
		})
		require.NoError(t, err)
		doc := etree.NewDocument()
		require.NoError(t, doc.ReadFromBytes(xmlBytes))
		assert.Equal(t, "9", textOf(t, doc, "/pedRegEvento/infPedReg/e101101/cMotivo"))
	})

	t.Run("rejeições", func(t *testing.T) {
		builder := NewEventoBuilderService()

		_, err := builder.Build(&EventoBuildContext{
			Emitter: emitterFixture(), ChaveAcesso: chave,
		})
		assert.Error(t, err, "justificativa obrigatória")

		_, err = builder.Build(&EventoBuildContext{
			Emitter: emitterFixture(), ChaveAcesso: "123", Justificativa: "ok",
		})
		assert.Error(t, err, "chave com tamanho errado")

		_, err = builder.Build(&EventoBuildContext{
			Emitter: emitterFixture(), ChaveAcesso: chave, Justificativa: "ok", CMotivo: "5",
		})
		assert.Error(t, err, "cMotivo desconhecido")
	})
}

// Catálogos do layout nacional NFS-e usados pelo builder e pelo motor de tarefas.
package nfse

import "strings"

// Ambientes da Sefin Nacional (tpAmb).
const (
	AmbienteProducao    = "1"
	AmbienteHomologacao = "2"
)

// Opção pelo Simples Nacional (opSimpNac).
const (
	OpSimpNaoOptante = "1"
	OpSimpMEI        = "2"
	OpSimpOptanteME  = "3" // ME/EPP optante pelo Simples Nacional
)

// Retenção do ISSQN (tpRetISSQN).
const (
	ISSQNNaoRetido = "1"
	ISSQNRetido    = "2"
)

// Motivos de cancelamento aceitos no evento e101101 (cMotivo).
const (
	MotivoErroEmissao        = "1"
	MotivoServicoNaoPrestado = "2"
	MotivoOutros             = "9"
)

// CodigoDPSRepetida é o código de rejeição da Sefin para identificador de DPS
// já utilizado; dispara a regeneração de série/número (nunca reuso).
const CodigoDPSRepetida = "E0014"

// MotivoValido informa se o código de motivo de cancelamento é aceito.
func MotivoValido(cMotivo string) bool {
	switch cMotivo {
	case MotivoErroEmissao, MotivoServicoNaoPrestado, MotivoOutros:
		return true
	}
	return false
}

// MapearOpSimpNac converte o texto livre do regime de tributação do emissor
// para o enum opSimpNac. Qualquer regime não reconhecido vira "não optante".
func MapearOpSimpNac(regimeTributacao string) string {
	regime := strings.ToLower(strings.TrimSpace(regimeTributacao))
	switch {
	case strings.Contains(regime, "mei"):
		return OpSimpMEI
	case strings.Contains(regime, "simples"):
		return OpSimpOptanteME
	default:
		return OpSimpNaoOptante
	}
}

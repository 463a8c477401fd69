package domain

import "errors"

// Erros de domínio (sem dependências externas). A taxonomia separa falhas que
// rejeitam antes de qualquer I/O (validação, schema), falhas fatais por tarefa
// (credencial) e falhas registradas na própria task (transporte, rejeição).
var (
	ErrNotFound     = errors.New("recurso não encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrConflict     = errors.New("conflito com o estado atual")

	// ErrCredencial indica bundle de certificado ilegível ou senha incorreta.
	// Fatal para a tarefa; nunca reenviado automaticamente.
	ErrCredencial = errors.New("certificado inválido ou senha incorreta")

	// ErrSchema indica campo obrigatório ausente na montagem do documento.
	// Nada é transmitido.
	ErrSchema = errors.New("documento não atende ao schema nacional")

	// ErrTransporte indica timeout ou falha de conexão com a Sefin. O envelope
	// não foi consumido; a task fica em erro e pode ser reenviada manualmente.
	ErrTransporte = errors.New("falha de transporte com a Sefin Nacional")
)

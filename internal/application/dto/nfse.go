// Package dto define os contratos JSON da API HTTP.
package dto

import "time"

// ErrorResponse corpo padrão de erro.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EmitirRequest pedido de emissão de NFS-e.
type EmitirRequest struct {
	EmitterID   string `json:"emitter_id"`
	ClientID    string `json:"client_id,omitempty"` // vazio = tomador não identificado
	Valor       string `json:"valor"`               // decimal em string, ex. "150.00"
	Descricao   string `json:"descricao"`
	CTribNac    string `json:"c_trib_nac"`
	Competencia string `json:"competencia"` // AAAA-MM-DD
	ISSRetido   bool   `json:"iss_retido,omitempty"`
	Aliquota    string `json:"aliquota,omitempty"`     // fração ou percentual
	DataEmissao string `json:"data_emissao,omitempty"` // ISO-8601, opcional
}

// CancelarRequest pedido de cancelamento de nota aceita.
type CancelarRequest struct {
	Justificativa string `json:"justificativa"`
	CMotivo       string `json:"c_motivo,omitempty"` // 1, 2 ou 9 (default)
}

// TaskResponse visão externa de uma task de emissão.
type TaskResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Serie       int64      `json:"serie"`
	Numero      int64      `json:"numero"`
	DpsID       string     `json:"dps_id"`
	ChaveAcesso string     `json:"chave_acesso,omitempty"`
	ErrorMsg    string     `json:"error_msg,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
}

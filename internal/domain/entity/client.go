package entity

import "time"

// Client é o tomador do serviço. Pode ser o sentinela "tomador não
// identificado" do emissor, caso em que o bloco <toma> é omitido por inteiro.
type Client struct {
	ID               string
	UserID           string
	Nome             string
	CNPJ             string
	CPF              string
	Email            string
	CEP              string
	Logradouro       string
	Numero           string
	Complemento      string
	Bairro           string
	Cidade           string
	UF               string
	CodigoIBGE       string
	NaoIdentificado  bool // sentinela por emissor: emite sem bloco de tomador
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Documento devolve o documento do tomador (CNPJ tem precedência).
func (c *Client) Documento() string {
	if c.CNPJ != "" {
		return c.CNPJ
	}
	return c.CPF
}

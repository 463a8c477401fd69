package entity

import "time"

// Emitter é o prestador de serviços: identidade fiscal vinculada a um bundle
// de certificado (.pfx + senha). O núcleo só lê o bundle; upload e validade
// são responsabilidade do colaborador de cadastro.
type Emitter struct {
	ID                  string
	UserID              string // dono (tenant); checagem de posse ao selecionar credencial
	RazaoSocial         string
	CNPJ                string // CNPJ ou CPF do prestador (apenas dígitos)
	InscricaoMunicipal  string
	RegimeTributacao    string // texto livre: "Simples Nacional", "MEI", "Lucro Presumido"...
	Email               string
	CodigoIBGE          string // município do prestador (7 dígitos), vai em cLocEmi
	CertificadoPath     string
	SenhaCertificado    string
	ValidadeCertificado string // informacional (AAAA-MM-DD); o núcleo não expira emissor
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

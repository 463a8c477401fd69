package nfse

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/jhoicas/nfse-nacional/internal/domain"
)

// GzipB64 comprime o XML com gzip e codifica em base64, formato exigido nos
// envelopes JSON da Sefin Nacional.
func GzipB64(xmlBytes []byte) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(xmlBytes); err != nil {
		return "", fmt.Errorf("comprimir xml: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("comprimir xml: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// GunzipB64 desfaz o par base64+gzip de um campo de resposta da Sefin.
func GunzipB64(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 inválido: %v", domain.ErrSchema, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip inválido: %v", domain.ErrSchema, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip truncado: %v", domain.ErrSchema, err)
	}
	return out, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ferreirogomes/deauto/models"
)

// MetadataService busca o JSON off-chain apontado pelo tokenURI.
// Falhas aqui nunca derrubam um fluxo: quem chama aplica defaults.
type MetadataService struct {
	HTTPClient *http.Client
}

// NewMetadataService cria o serviço com um timeout curto por requisição —
// metadata lento não pode travar a montagem de uma listagem inteira.
func NewMetadataService() *MetadataService {
	return &MetadataService{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch busca e decodifica o metadata de um tokenURI http(s).
// URIs de outros esquemas (ipfs:// sem gateway, data:) não são buscadas.
func (s *MetadataService) Fetch(ctx context.Context, uri string) (models.CarMetadata, error) {
	if !strings.HasPrefix(uri, "http") {
		return models.CarMetadata{}, fmt.Errorf("tokenURI não é http(s): %q", uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return models.CarMetadata{}, fmt.Errorf("falha ao montar requisição de metadata: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return models.CarMetadata{}, fmt.Errorf("falha ao buscar metadata em %s: %w", uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.CarMetadata{}, fmt.Errorf("metadata em %s respondeu %d", uri, resp.StatusCode)
	}

	var metadata models.CarMetadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return models.CarMetadata{}, fmt.Errorf("falha ao decodificar metadata de %s: %w", uri, err)
	}
	return metadata, nil
}

// withDefaults preenche os campos ausentes do metadata com os placeholders
// que o marketplace exibe quando a busca falha.
func withDefaults(metadata models.CarMetadata, tokenID string) models.CarMetadata {
	if metadata.Name == "" {
		metadata.Name = fmt.Sprintf("Car NFT #%s", tokenID)
	}
	if metadata.Image == "" {
		metadata.Image = models.PlaceholderImage
	}
	return metadata
}

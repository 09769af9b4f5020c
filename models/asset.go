package models

// Car representa um carro tokenizado (NFT) na blockchain.
// O TokenID é atribuído pelo contrato no momento do mint e nunca muda.
type Car struct {
	TokenID      string      `json:"token_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Image        string      `json:"image"`
	Attributes   []Attribute `json:"attributes"`
	Owner        string      `json:"owner"`
	TokenURI     string      `json:"token_uri,omitempty"`
	Details      CarDetails  `json:"details"`
	IsListed     bool        `json:"is_listed"`
	ListPrice    string      `json:"list_price,omitempty"`         // Em wei (menor unidade)
	ListPriceEth string      `json:"list_price_display,omitempty"` // Apenas para exibição
}

// CarDetails são os dados do veículo gravados on-chain no mint.
type CarDetails struct {
	VIN   string `json:"vin"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  uint16 `json:"year"`
}

// CarMetadata é o JSON off-chain apontado pelo tokenURI.
// Todos os campos são opcionais; falha ao buscar degrada para defaults.
type CarMetadata struct {
	Name        string      `json:"name"`
	Image       string      `json:"image"`
	Description string      `json:"description"`
	Attributes  []Attribute `json:"attributes"`
}

// Attribute é um par trait/valor do metadata (padrão de marketplaces NFT).
type Attribute struct {
	TraitType string      `json:"trait_type"`
	Value     interface{} `json:"value"`
}

// PlaceholderImage é usada quando o metadata não pôde ser buscado.
const PlaceholderImage = "https://via.placeholder.com/400x300?text=Car+NFT"

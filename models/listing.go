package models

// Listing representa um carro atualmente à venda no marketplace.
// Preços sempre em wei (inteiro de precisão arbitrária, serializado como
// string decimal); a conversão para ETH acontece só na exibição.
type Listing struct {
	TokenID       string      `json:"token_id"`
	Seller        string      `json:"seller"`
	Price         string      `json:"price_wei"`
	PriceEth      string      `json:"price"`
	Active        bool        `json:"active"`
	ListedAtBlock uint64      `json:"listed_at_block"`
	Name          string      `json:"name"`
	Image         string      `json:"image"`
	Description   string      `json:"description"`
	Attributes    []Attribute `json:"attributes"`
	Details       CarDetails  `json:"details"`
}

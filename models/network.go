package models

// NetworkInfo descreve uma rede suportada: nome de exibição e símbolo da
// moeda nativa. Imutável, carregado da tabela estática abaixo.
type NetworkInfo struct {
	ChainID  uint64 `json:"chain_id"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

// supportedNetworks é a tabela estática de redes conhecidas.
var supportedNetworks = map[uint64]NetworkInfo{
	1:        {ChainID: 1, Name: "Ethereum Mainnet", Currency: "ETH"},
	11155111: {ChainID: 11155111, Name: "Sepolia Testnet", Currency: "ETH"},
	137:      {ChainID: 137, Name: "Polygon Mainnet", Currency: "MATIC"},
	80001:    {ChainID: 80001, Name: "Polygon Mumbai", Currency: "MATIC"},
}

// LookupNetwork retorna os dados da rede para um chain ID.
// Rede desconhecida não é um erro: fluxos de leitura podem continuar,
// fluxos de escrita devem recusar antes de submeter qualquer transação.
func LookupNetwork(chainID uint64) (NetworkInfo, bool) {
	info, ok := supportedNetworks[chainID]
	return info, ok
}

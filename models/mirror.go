package models

import "time"

// ListingRecord é o espelho em banco de uma listagem observada on-chain.
// CUIDADO: é apenas rastreamento — a fonte de verdade é a blockchain, e o
// orquestrador nunca valida contra este espelho.
type ListingRecord struct {
	ID          string    `db:"id" json:"id"`
	TokenID     string    `db:"token_id" json:"token_id"`
	Seller      string    `db:"seller" json:"seller"`
	PriceWei    string    `db:"price_wei" json:"price_wei"`
	Active      bool      `db:"active" json:"active"`
	TxHash      string    `db:"tx_hash" json:"tx_hash"`
	BlockNumber uint64    `db:"block_number" json:"block_number"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TransferRecord é o histórico de transferências de um token observado
// pelo listener.
type TransferRecord struct {
	ID          string    `db:"id" json:"id"`
	TokenID     string    `db:"token_id" json:"token_id"`
	FromAddress string    `db:"from_address" json:"from_address"`
	ToAddress   string    `db:"to_address" json:"to_address"`
	TxHash      string    `db:"tx_hash" json:"tx_hash"`
	BlockNumber uint64    `db:"block_number" json:"block_number"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

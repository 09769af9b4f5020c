package models

// LedgerEvent é um evento emitido pelo contrato e decodificado do receipt.
type LedgerEvent struct {
	Name        string                 `json:"name"`
	Args        map[string]interface{} `json:"args"`
	BlockNumber uint64                 `json:"block_number"`
	TxHash      string                 `json:"tx_hash"`
}

// LedgerReceipt é o comprovante de uma transação confirmada.
type LedgerReceipt struct {
	TxHash      string        `json:"tx_hash"`
	BlockNumber uint64        `json:"block_number"`
	GasUsed     uint64        `json:"gas_used"`
	Status      uint64        `json:"status"`
	Events      []LedgerEvent `json:"events"`
}

// TransactionOutcome é o resultado de uma operação de escrita bem-sucedida.
// Só é produzido depois da confirmação; nunca parcialmente preenchido.
type TransactionOutcome struct {
	TransactionHash string        `json:"transaction_hash"`
	Receipt         LedgerReceipt `json:"receipt"`
	TokenID         string        `json:"token_id,omitempty"` // Derivado dos eventos (ex: mint)
}

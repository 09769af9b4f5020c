package storage

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/ferreirogomes/deauto/models"
)

// DB representa a conexão com o banco de dados PostgreSQL.
type DB struct {
	*sqlx.DB
}

// NewDB conecta-se ao PostgreSQL e executa as migrações.
func NewDB(dataSourceName string) (*DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	log.Println("Conexão com PostgreSQL estabelecida com sucesso.")

	if err := runMigrations(db.DB); err != nil {
		return nil, fmt.Errorf("falha ao executar migrações: %w", err)
	}

	return &DB{db}, nil
}

// runMigrations executa as migrações usando sql-migrate.
func runMigrations(db *sql.DB) error {
	migrations := &migrate.FileMigrationSource{
		Dir: "./storage/migrations",
	}

	n, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		log.Printf("Aplicadas %d migrações ao banco de dados.", n)
	} else {
		log.Println("Nenhuma migração nova para aplicar.")
	}
	return nil
}

// UpsertListing grava ou atualiza o espelho de uma listagem observada.
// ON CONFLICT por token_id: o listener pode reprocessar o mesmo evento.
func (d *DB) UpsertListing(rec models.ListingRecord) error {
	query := `
		INSERT INTO listings_mirror (id, token_id, seller, price_wei, active, tx_hash, block_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (token_id) DO UPDATE SET
			seller = EXCLUDED.seller,
			price_wei = EXCLUDED.price_wei,
			active = EXCLUDED.active,
			tx_hash = EXCLUDED.tx_hash,
			block_number = EXCLUDED.block_number,
			updated_at = NOW()
		WHERE listings_mirror.block_number <= EXCLUDED.block_number`
	_, err := d.Exec(query, rec.ID, rec.TokenID, rec.Seller, rec.PriceWei, rec.Active, rec.TxHash, rec.BlockNumber)
	if err != nil {
		return fmt.Errorf("falha ao gravar espelho da listagem: %w", err)
	}
	return nil
}

// DeactivateListing marca o espelho como inativo (venda ou remoção).
func (d *DB) DeactivateListing(tokenID, txHash string, blockNumber uint64) error {
	query := `
		UPDATE listings_mirror
		SET active = FALSE, tx_hash = $2, block_number = $3, updated_at = NOW()
		WHERE token_id = $1 AND block_number <= $3`
	_, err := d.Exec(query, tokenID, txHash, blockNumber)
	if err != nil {
		return fmt.Errorf("falha ao desativar espelho da listagem: %w", err)
	}
	return nil
}

// UpdateListingPrice reflete um PriceUpdated no espelho.
func (d *DB) UpdateListingPrice(tokenID, priceWei, txHash string, blockNumber uint64) error {
	query := `
		UPDATE listings_mirror
		SET price_wei = $2, tx_hash = $3, block_number = $4, updated_at = NOW()
		WHERE token_id = $1 AND block_number <= $4`
	_, err := d.Exec(query, tokenID, priceWei, txHash, blockNumber)
	if err != nil {
		return fmt.Errorf("falha ao atualizar preço no espelho: %w", err)
	}
	return nil
}

// GetListingMirror busca o espelho de uma listagem.
func (d *DB) GetListingMirror(tokenID string) (models.ListingRecord, bool, error) {
	var rec models.ListingRecord
	err := d.Get(&rec, `SELECT * FROM listings_mirror WHERE token_id = $1`, tokenID)
	if err == sql.ErrNoRows {
		return models.ListingRecord{}, false, nil
	}
	if err != nil {
		return models.ListingRecord{}, false, fmt.Errorf("falha ao buscar espelho da listagem: %w", err)
	}
	return rec, true, nil
}

// SaveTransfer grava uma transferência no histórico.
// ON CONFLICT (tx_hash, token_id) torna o reprocessamento idempotente.
func (d *DB) SaveTransfer(rec models.TransferRecord) error {
	query := `
		INSERT INTO transfers (id, token_id, from_address, to_address, tx_hash, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tx_hash, token_id) DO NOTHING`
	_, err := d.Exec(query, rec.ID, rec.TokenID, rec.FromAddress, rec.ToAddress, rec.TxHash, rec.BlockNumber)
	if err != nil {
		return fmt.Errorf("falha ao gravar transferência: %w", err)
	}
	return nil
}

// GetTransferHistory lista as transferências de um token, mais recentes
// primeiro.
func (d *DB) GetTransferHistory(tokenID string) ([]models.TransferRecord, error) {
	var records []models.TransferRecord
	err := d.Select(&records, `
		SELECT * FROM transfers
		WHERE token_id = $1
		ORDER BY block_number DESC`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("falha ao buscar histórico de transferências: %w", err)
	}
	return records, nil
}

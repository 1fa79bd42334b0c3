package models

import (
	"time"
)

// RelayerState is the singleton row holding the scalar fields of the relayer state.
// Amounts and u64 watermarks are stored as decimal strings in numeric columns.
type RelayerState struct {
	ID                    uint   `gorm:"primaryKey"`
	Version               uint32 `gorm:"not null"`
	Manager               string `gorm:"type:varchar(255)"`
	RelayerAccount        string `gorm:"type:varchar(255)"`
	Paused                bool   `gorm:"default:false"`
	GasPool               string `gorm:"type:numeric(39,0)"`
	MinGasPool            string `gorm:"type:numeric(39,0)"`
	MaxGasPool            string `gorm:"type:numeric(39,0)"`
	BaseFee               string `gorm:"type:numeric(39,0)"`
	OverflowRecipient     string `gorm:"type:varchar(255)"`
	MaxGas                uint64
	DefaultGas            uint64
	RetryBuffer           uint64
	ChunkSize             int
	PaymentFTContract     string `gorm:"type:varchar(255)"`
	MinFTDeposit          string `gorm:"type:numeric(39,0)"`
	AuthContract          string `gorm:"type:varchar(255)"`
	AuthKeyExpiryDays     uint32
	AuthMultisig          bool
	AuthMultisigThreshold uint32
	NextRequestID         string    `gorm:"type:numeric(20,0)"`
	MpcKeyVersion         uint32
	CreatedAt             time.Time `gorm:"type:timestamp(6);default:current_timestamp(6)"`
	UpdatedAt             time.Time `gorm:"type:timestamp(6);default:current_timestamp(6)"`
}

type ProcessedNonce struct {
	Sender    string    `gorm:"primaryKey;type:varchar(255)"`
	Nonce     string    `gorm:"type:numeric(20,0)"`
	UpdatedAt time.Time `gorm:"type:timestamp(6);default:current_timestamp(6)"`
}

// FailedTransaction keeps the canonical encoding of a queued request. Position is the
// retry order.
type FailedTransaction struct {
	Position       int    `gorm:"primaryKey;autoIncrement:false"`
	Sender         string `gorm:"type:varchar(255);index"`
	Nonce          string `gorm:"type:numeric(20,0)"`
	MaxBlockHeight string `gorm:"type:numeric(20,0)"`
	Gas            uint64
	Payload        []byte
	CreatedAt      time.Time `gorm:"type:timestamp(6);default:current_timestamp(6)"`
}

type AuthAccount struct {
	AccountID string `gorm:"primaryKey;type:varchar(255)"`
	PublicKey string `gorm:"type:varchar(255)"`
}

type ChainMpcMapping struct {
	Chain  string `gorm:"primaryKey;type:varchar(255)"`
	Signer string `gorm:"type:varchar(255)"`
}

type WhitelistedContract struct {
	ContractID string `gorm:"primaryKey;type:varchar(255)"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&RelayerState{},
		&ProcessedNonce{},
		&FailedTransaction{},
		&AuthAccount{},
		&ChainMpcMapping{},
		&WhitelistedContract{},
	}
}

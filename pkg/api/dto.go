package api

// RelayRequest carries one base64 encoded SignedDelegateAction.
type RelayRequest struct {
	Request string `json:"request" validate:"required,base64"`
}

type BatchRequest struct {
	Requests []string `json:"requests" validate:"required,min=1,dive,required,base64"`
}

type DepositRequest struct {
	From   string `json:"from" validate:"required"`
	Amount string `json:"amount" validate:"required,number"`
}

type RetryRequest struct {
	Max int `json:"max" validate:"min=0,max=100"`
}

type RelayResponse struct {
	PlanIDs []string `json:"plan_ids"`
}

type NonceResponse struct {
	Sender string `json:"sender"`
	Nonce  uint64 `json:"nonce"`
}

type RetryResponse struct {
	Retried int `json:"retried"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type ManagerRequest struct {
	Manager string `json:"manager" validate:"required"`
}

type PausedRequest struct {
	Paused *bool `json:"paused" validate:"required"`
}

type GasPoolLimitsRequest struct {
	MinGasPool string `json:"min_gas_pool" validate:"required,number"`
	MaxGasPool string `json:"max_gas_pool" validate:"required,number"`
}

type BaseFeeRequest struct {
	BaseFee string `json:"base_fee" validate:"required,number"`
}

type MaxGasRequest struct {
	MaxGasTGas uint64 `json:"max_gas_tgas" validate:"required,min=1,max=300"`
}

type ChunkSizeRequest struct {
	ChunkSize int `json:"chunk_size"`
}

type ChainMappingRequest struct {
	Chain  string `json:"chain" validate:"required"`
	Signer string `json:"signer"`
}

type WhitelistRequest struct {
	Contract string `json:"contract" validate:"required"`
}

type PaymentContractRequest struct {
	Contract   string `json:"contract"`
	MinDeposit string `json:"min_deposit" validate:"omitempty,number"`
}

type MultisigRequest struct {
	Enabled    bool   `json:"enabled"`
	Threshold  uint32 `json:"threshold"`
	ExpiryDays uint32 `json:"expiry_days"`
}

type AuthAccountRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	PublicKey string `json:"public_key" validate:"required"`
}

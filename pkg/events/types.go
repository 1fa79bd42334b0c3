package events

const (
	Standard = "onsocial"
	Version  = "1.0.0"
)

const (
	EVENT_ACCOUNT_SPONSORED            = "AccountSponsored"
	EVENT_AUTH_ADDED                   = "AuthAdded"
	EVENT_AUTH_REMOVED                 = "AuthRemoved"
	EVENT_CROSS_CHAIN_SIGNATURE_RESULT = "CrossChainSignatureResult"
	EVENT_BRIDGE_TRANSFER_INITIATED    = "BridgeTransferInitiated"
	EVENT_BRIDGE_TRANSFER_COMPLETED    = "BridgeTransferCompleted"
	EVENT_BRIDGE_TRANSFER_FAILED       = "BridgeTransferFailed"
	EVENT_FEE_CHARGED                  = "FeeCharged"
	EVENT_MANAGER_CHANGED              = "ManagerChanged"
	EVENT_STATE_MIGRATED               = "StateMigrated"
	EVENT_GAS_POOL_UPDATED             = "GasPoolUpdated"
	EVENT_TRANSACTION_COMMITTED        = "TransactionCommitted"
	EVENT_TRANSACTION_QUEUED           = "TransactionQueued"
	EVENT_TRANSACTION_DROPPED          = "TransactionDropped"
	EVENT_PAUSED_UPDATED               = "PausedUpdated"
	EVENT_GAS_POOL_LIMITS_UPDATED      = "GasPoolLimitsUpdated"
	EVENT_BASE_FEE_UPDATED             = "BaseFeeUpdated"
	EVENT_MAX_GAS_UPDATED              = "MaxGasUpdated"
	EVENT_CHUNK_SIZE_UPDATED           = "ChunkSizeUpdated"
	EVENT_CHAIN_MPC_MAPPING_UPDATED    = "ChainMpcMappingUpdated"
	EVENT_WHITELIST_UPDATED            = "WhitelistUpdated"
	EVENT_PAYMENT_FT_CONTRACT_UPDATED  = "PaymentFTContractUpdated"
	EVENT_AUTH_MULTISIG_UPDATED        = "AuthMultisigUpdated"
)

// Event is the versioned envelope every emitted event travels in.
type Event struct {
	Standard string `json:"standard" bson:"standard"`
	Version  string `json:"version" bson:"version"`
	Event    string `json:"event" bson:"event"`
	Data     any    `json:"data" bson:"data"`
}

func New(event string, data any) Event {
	return Event{Standard: Standard, Version: Version, Event: event, Data: data}
}

type AccountSponsored struct {
	Sender   string `json:"sender" bson:"sender"`
	Receiver string `json:"receiver" bson:"receiver"`
	Amount   string `json:"amount" bson:"amount"`
	Nonce    uint64 `json:"nonce" bson:"nonce"`
}

type AuthChanged struct {
	AccountID string `json:"account_id" bson:"account_id"`
	PublicKey string `json:"public_key" bson:"public_key"`
	Success   bool   `json:"success" bson:"success"`
	Error     string `json:"error,omitempty" bson:"error,omitempty"`
}

type CrossChainSignatureResult struct {
	Sender      string `json:"sender" bson:"sender"`
	RequestID   uint64 `json:"request_id" bson:"request_id"`
	TargetChain string `json:"target_chain" bson:"target_chain"`
	Success     bool   `json:"success" bson:"success"`
	Signature   string `json:"signature,omitempty" bson:"signature,omitempty"`
	Error       string `json:"error,omitempty" bson:"error,omitempty"`
}

type BridgeTransfer struct {
	Sender   string `json:"sender" bson:"sender"`
	Contract string `json:"contract" bson:"contract"`
	Receiver string `json:"receiver" bson:"receiver"`
	Amount   string `json:"amount" bson:"amount"`
	Nonce    uint64 `json:"nonce" bson:"nonce"`
	Error    string `json:"error,omitempty" bson:"error,omitempty"`
}

type FeeCharged struct {
	Sender   string `json:"sender" bson:"sender"`
	Contract string `json:"contract" bson:"contract"`
	Amount   string `json:"amount" bson:"amount"`
	Nonce    uint64 `json:"nonce" bson:"nonce"`
}

type ManagerChanged struct {
	OldManager string `json:"old_manager" bson:"old_manager"`
	NewManager string `json:"new_manager" bson:"new_manager"`
}

type StateMigrated struct {
	FromVersion uint32 `json:"from_version" bson:"from_version"`
	ToVersion   uint32 `json:"to_version" bson:"to_version"`
}

type GasPoolUpdated struct {
	Depositor string `json:"depositor,omitempty" bson:"depositor,omitempty"`
	Amount    string `json:"amount" bson:"amount"`
	Balance   string `json:"balance" bson:"balance"`
	Overflow  string `json:"overflow,omitempty" bson:"overflow,omitempty"`
}

type TransactionStatus struct {
	Sender string `json:"sender" bson:"sender"`
	Nonce  uint64 `json:"nonce" bson:"nonce"`
	Gas    uint64 `json:"gas,omitempty" bson:"gas,omitempty"`
	Reason string `json:"reason,omitempty" bson:"reason,omitempty"`
}

// ConfigUpdated is the payload of every *Updated admin event.
type ConfigUpdated struct {
	Field string `json:"field" bson:"field"`
	Old   string `json:"old" bson:"old"`
	New   string `json:"new" bson:"new"`
}

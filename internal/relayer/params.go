package relayer

import (
	"fmt"

	"github.com/OnSocial-Labs/onsocial-relayer/config"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/state"
	"github.com/OnSocial-Labs/onsocial-relayer/pkg/types"
)

// ParamsFromConfig converts the relayer section of the configuration into the seed of
// a fresh relayer state.
func ParamsFromConfig(cfg *config.RelayerConfig) (state.Params, error) {
	p := state.Params{
		Manager:           types.AccountID(cfg.Manager),
		RelayerAccount:    types.AccountID(cfg.RelayerAccount),
		OverflowRecipient: types.AccountID(cfg.OverflowRecipient),
		MaxGas:            types.Gas(cfg.MaxGasTGas) * types.TGas,
		DefaultGas:        types.Gas(cfg.DefaultGasTGas) * types.TGas,
		RetryBuffer:       types.Gas(cfg.RetryBufferTGas) * types.TGas,
		ChunkSize:         cfg.ChunkSize,
		AuthContract:      types.AccountID(cfg.AuthContract),
		PaymentFTContract: types.AccountID(cfg.PaymentFTContract),
		ChainMpcMapping:   make(map[string]types.AccountID, len(cfg.ChainMpcMapping)),
	}
	for _, amount := range []struct {
		name string
		src  string
		dst  *types.Balance
	}{
		{"initial_gas_pool", cfg.InitialGasPool, &p.InitialGasPool},
		{"min_gas_pool", cfg.MinGasPool, &p.MinGasPool},
		{"max_gas_pool", cfg.MaxGasPool, &p.MaxGasPool},
		{"base_fee", cfg.BaseFee, &p.BaseFee},
		{"min_ft_deposit", cfg.MinFTDeposit, &p.MinFTDeposit},
	} {
		if amount.src == "" {
			continue
		}
		b, err := types.ParseBalance(amount.src)
		if err != nil {
			return state.Params{}, fmt.Errorf("relayer.%s: %w", amount.name, err)
		}
		amount.dst.Set(b)
	}
	for chain, signer := range cfg.ChainMpcMapping {
		p.ChainMpcMapping[chain] = types.AccountID(signer)
	}
	for _, contract := range cfg.Whitelist {
		p.Whitelist = append(p.Whitelist, types.AccountID(contract))
	}
	return p, nil
}

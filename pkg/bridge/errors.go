package bridge

import (
	"cosmossdk.io/errors"
)

// ModuleName is the error codespace for the bridge service.
const ModuleName = "bridge"

// Bridge sentinel errors
var (
	ErrNoDepositAddresses = errors.Register(ModuleName, 1100, "no deposit addresses configured")
	ErrNoSenderAddresses  = errors.Register(ModuleName, 1101, "no sender addresses configured")
	ErrInvalidFeeConfig   = errors.Register(ModuleName, 1102, "fee must be less than minimum deposit, minimum less than maximum")
	ErrInvalidEndpoint    = errors.Register(ModuleName, 1103, "endpoint must be an http(s) URL")
	ErrMissingSeed        = errors.Register(ModuleName, 1104, "destination wallet seed not configured")
	ErrAmountOutOfRange   = errors.Register(ModuleName, 1105, "deposit amount outside configured bounds")
	ErrAssetNotAllowed    = errors.Register(ModuleName, 1106, "asset type not in allowed set")
	ErrNoPendingMirror    = errors.Register(ModuleName, 1107, "no pending mirror for deposit")
	ErrInsufficientNet    = errors.Register(ModuleName, 1108, "insufficient after fee")
	ErrAdapterAuth        = errors.Register(ModuleName, 1109, "ledger adapter authentication failed")
	ErrStoreClosed        = errors.Register(ModuleName, 1110, "durable store is closed")
)

package models

type TransactionType string

const (
	TransactionTypeDebit  TransactionType = "debit"
	TransactionTypeCredit TransactionType = "credit"
)

type TransferScope string

const (
	TransferScopeBranch  TransferScope = "branch"
	TransferScopeChannel TransferScope = "channel"
)

type PoolType string

const (
	PoolTypeCentral PoolType = "central"
	PoolTypeBranch  PoolType = "branch"
	PoolTypeChannel PoolType = "channel"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCredit   PaymentMethod = "credit"
)

type MovementType string

const (
	MovementTypeIntake      MovementType = "intake"
	MovementTypeTransferOut MovementType = "transfer_out"
	MovementTypeTransferIn  MovementType = "transfer_in"
	MovementTypeSale        MovementType = "sale"
	MovementTypeRebuild     MovementType = "rebuild"
)

type GapKind string

const (
	GapKindLedgerLog  GapKind = "ledger_log"
	GapKindSaleCredit GapKind = "sale_credit"
)

type GapStatus string

const (
	GapStatusPending  GapStatus = "pending"
	GapStatusResolved GapStatus = "resolved"
	GapStatusFailed   GapStatus = "failed"
)

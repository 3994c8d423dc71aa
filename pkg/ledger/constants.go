package ledger

const (
	operationApply      = "apply"
	operationOpen       = "open"
	operationSuspend    = "suspend"
	operationReactivate = "reactivate"
	operationClose      = "close"

	operationStatusOK       = "ok"
	operationStatusReplayed = "replayed"
	operationStatusError    = "error"

	subjectLimit   = "limit"
	subjectBalance = "balance"
	subjectAccount = "account"

	codeMaxTransactionAmount      = "max_transaction_amount"
	codeMaxDailyTransactionCount  = "max_daily_transaction_count"
	codeMaxDailyTransactionAmount = "max_daily_transaction_amount"
	codeMinBalance                = "min_balance"
	codeMaxBalance                = "max_balance"
	codeInsufficientFunds         = "insufficient_funds"
	codeNonZeroBalance            = "non_zero_balance"
	codeStatusTransition          = "status_transition"

	defaultPageSize = 20
	maxPageSize     = 200

	accountNumberAttempts = 3
)

package topics

const (
	// Depósitos on-chain observados (scanner e webhook convergem aqui)
	DepositObserved = "deposit_observed"

	// DLQ para eventos de depósito que falharam após retries
	DepositObservedDLQ = "deposit_observed_dlq"
)

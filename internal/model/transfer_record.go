package model

// TransferRecord is the journal representation of an executed asset transfer.
type TransferRecord struct {
	Operation  string `json:"operation"`
	Asset      string `json:"asset"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     uint64 `json:"amount"`
	Authority  string `json:"authority"`
	Signer     string `json:"signer"`
	Reference  string `json:"reference,omitempty"`
	Status     string `json:"status"`
	ExecutedAt string `json:"executed_at"`
}

package logging

// Standard field names for structured logging.
const (
	FieldOrderID    = "order_id"
	FieldTraderID   = "trader_id"
	FieldOrderType  = "order_type"
	FieldStatus     = "status"
	FieldAmount     = "amount"
	FieldCharge     = "charge"
	FieldTxnID      = "txn_id"
	FieldReference  = "reference"
	FieldSender     = "sender"
	FieldKind       = "message_kind"
	FieldConfidence = "confidence"
	FieldSource     = "source"
	FieldPattern    = "pattern"
	FieldReason     = "reason"
	FieldOperation  = "operation"
	FieldError      = "error"
	FieldDuration   = "duration_ms"
	FieldCount      = "count"
	FieldBalance    = "balance"
	FieldPhone      = "phone"
)

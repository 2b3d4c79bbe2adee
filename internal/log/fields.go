package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldClub         = "club_id"
	FieldYear         = "year_id"
	FieldMember       = "member_id"
	FieldSubscription = "subscription_id"
	FieldInstallment  = "installment"
	FieldAmountPaise  = "amount_paise"
	FieldBalancePaise = "balance_paise"
	FieldAction       = "action"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentAudit   = "audit"
	ComponentExport  = "export"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpClose     = "close"
	OpToggle    = "toggle"
	OpReconcile = "reconcile"
	OpBalance   = "balance"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpExport    = "export"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

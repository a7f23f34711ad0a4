package taskname

const (
	// Billing tasks
	BillingInvoicesGenerate = "billing:invoices:generate"
	BillingPixReconcile     = "billing:pix:reconcile"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

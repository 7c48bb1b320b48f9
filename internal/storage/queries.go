package storage

const transactionColumns = `seq, receipt_number, amount_cents, kind, counterparty_name, counterparty_phone,
	paybill_number, account_number, till_number, merchant_name, agent_number, agent_name,
	recipient_phone, raw_text, detected_clues, parser_version, occurred_at, ingested_at,
	transport_id, revision`

// upsertTransaction inserts or, when the incoming parser version is newer,
// replaces a record in one statement. RETURNING yields no row when the
// WHERE guard rejects the update.
const upsertTransaction = `
INSERT INTO transactions (
	receipt_number, amount_cents, kind, counterparty_name, counterparty_phone,
	paybill_number, account_number, till_number, merchant_name, agent_number, agent_name,
	recipient_phone, raw_text, detected_clues, parser_version, occurred_at, ingested_at,
	transport_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (receipt_number) DO UPDATE SET
	amount_cents       = excluded.amount_cents,
	kind               = excluded.kind,
	counterparty_name  = excluded.counterparty_name,
	counterparty_phone = excluded.counterparty_phone,
	paybill_number     = excluded.paybill_number,
	account_number     = excluded.account_number,
	till_number        = excluded.till_number,
	merchant_name      = excluded.merchant_name,
	agent_number       = excluded.agent_number,
	agent_name         = excluded.agent_name,
	recipient_phone    = excluded.recipient_phone,
	raw_text           = excluded.raw_text,
	detected_clues     = excluded.detected_clues,
	parser_version     = excluded.parser_version,
	occurred_at        = excluded.occurred_at,
	ingested_at        = excluded.ingested_at,
	transport_id       = excluded.transport_id,
	revision           = transactions.revision + 1
WHERE excluded.parser_version > transactions.parser_version
RETURNING revision`

const (
	getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE receipt_number = ?`

	listTransactions = `SELECT ` + transactionColumns + ` FROM transactions ORDER BY occurred_at, seq`

	listTransactionsBetween = `SELECT ` + transactionColumns + ` FROM transactions
WHERE occurred_at BETWEEN ? AND ? ORDER BY occurred_at, seq`

	listRecentTransactions = `SELECT ` + transactionColumns + ` FROM transactions
ORDER BY occurred_at DESC, seq DESC LIMIT ?`

	listStaleTransactions = `SELECT ` + transactionColumns + ` FROM transactions
WHERE parser_version < ? ORDER BY seq LIMIT ?`

	countTransactions = `SELECT COUNT(*) FROM transactions`

	deleteTransaction = `DELETE FROM transactions WHERE receipt_number = ?`

	deleteAllTransactions = `DELETE FROM transactions`

	topMerchants = `SELECT merchant_name, COUNT(*) AS n, SUM(amount_cents)
FROM transactions
WHERE merchant_name <> ''
GROUP BY merchant_name
ORDER BY n DESC, MIN(seq)
LIMIT ?`

	recentByMerchant = `SELECT ` + transactionColumns + ` FROM transactions
WHERE merchant_name = ? ORDER BY occurred_at DESC, seq DESC LIMIT ?`

	// The merchant name of a group is the one on its newest record.
	recurringPaybills = `SELECT t.paybill_number, COUNT(*) AS n, SUM(t.amount_cents),
	(SELECT m.merchant_name FROM transactions m
	 WHERE m.paybill_number = t.paybill_number
	 ORDER BY m.occurred_at DESC, m.seq DESC LIMIT 1)
FROM transactions t
WHERE t.kind = 'PAYBILL' AND t.paybill_number <> ''
GROUP BY t.paybill_number
HAVING COUNT(*) >= ?
ORDER BY n DESC, MIN(t.seq)`

	upsertOverride = `INSERT INTO category_overrides (scope, key, category, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT (scope, key) DO UPDATE SET category = excluded.category, created_at = excluded.created_at`

	listOverrides = `SELECT scope, key, category, created_at FROM category_overrides ORDER BY scope, key`

	deleteOverride = `DELETE FROM category_overrides WHERE scope = ? AND key = ?`
)

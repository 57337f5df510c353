// Package billing holds the invoice ledger of the recurring billing engine.
//
// A project's commercial agreement (DealTerms) is turned into one RECURRING
// invoice per calendar month. Every invoice carries its amounts in the deal
// currency plus a normalized total in the base reporting currency, and moves
// through PENDING -> INVOICED -> PAID. Payment may skip INVOICED.
//
// Key types:
//   - Invoice: the aggregate root, with its lifecycle methods
//   - Calculator: tax and base-currency derivation for invoice amounts
//   - DealTerms: contract terms read from the deal collaborator
//   - BillingSummary: read-side roll-up of a project's invoices
package billing

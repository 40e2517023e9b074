// Package quota implements the Quota/License Gate: the pre-call guard
// and post-call reconciliation sitting between the router and the
// cloud backend, plus the bonus-token ledger and promotion state it
// owns. Every mutator takes a short in-memory critical section per
// session and emits a change event after releasing it, mirroring the
// lock discipline spec'd for monthly-usage and bonus-ledger updates.
package quota

// Package roundengine implements the round lifecycle and queue
// coordination engine inside the gameplay context.
//
// The module owns timed round orchestration (prompt/copy/vote start,
// submission, abandonment), the matchmaking queues that pair prompt
// authors with copy contributors, phraseset assembly once two copies
// exist, and the timeout sweep that reclaims stuck rounds with partial
// refunds. It keeps business rules in application/domain layers and
// isolates infrastructure concerns behind ports and adapters.
package roundengine

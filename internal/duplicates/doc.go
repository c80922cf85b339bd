// Package duplicates decides whether a freshly processed document repeats one
// the owner already has, and what to do about it.
//
// Strategies run in a fixed order and the first hit wins: identical content
// hash, embedding similarity of the first text chunk, then matching amount and
// type within a date window. The similarity of the hit picks the action:
// delete the new record, flag it, or keep it. Lookup failures never fail
// ingestion; they are logged and treated as "no duplicate".
package duplicates

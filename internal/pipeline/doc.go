// Package pipeline runs one indexing pass end to end.
//
// A run moves through the states
//
//	listing -> fetching -> chunking -> embedding -> publishing -> finalizing -> done
//
// and ends in failed from any of them. Every stage error is returned as a
// *StageError naming the stage. Once a collection has been created,
// finalization always runs, on a context detached from the caller's
// cancellation, so a cancelled or failed run never leaves an empty
// collection behind and never disturbs the collection readers are using.
//
// Nothing inside a run retries. Callers that want retries wrap Run and
// consult indexerr.Retryable.
package pipeline

// Package agent contains the closed set of orchestration stages and the
// helpers to compose them into graphs:
//
//  1. LeafAgent runs one unit of work (a model completion, a tool call or a
//     plain function) and writes its result to a single state key
//  2. SequentialAgent runs children in order and halts when the chain breaks
//  3. ParallelAgent runs children concurrently over disjoint keys
//
// The variant set is sealed; operations over a graph are written as a
// Visitor (see RequiredKeys, OutputKeys, Validate, Describe).
//
// Execution Model:
//   - Every stage receives a *core.RunContext carrying the shared State and
//     the run's emit channel; children emit directly into that channel
//   - Tool failures (*core.ToolFailure) are data: the leaf stores the
//     diagnostic under its output key and the run continues
//   - Any other error is a fault that stops the enclosing sequential stage
//
// Graph errors surface at construction: NewParallelAgent rejects children
// with overlapping outputs.
package agent

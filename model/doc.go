// Package model defines the provider-agnostic abstraction used by model
// stages to call a language model.
//
// Core goals:
//   - Unify streaming and non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers live in sub-packages (openai, anthropic, gemini) so the agent
// graph stays decoupled from vendor SDKs.
package model

// Package events defines the typed event contract shared by the stream
// clients and the orchestrator.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - user_turn.*           (speech-to-text turn protocol)
//   - assistant_response.*  (language model response stream)
//
// Semantics used across the package:
//
//   - Updated: mutable point-in-time snapshot that can change over time.
//   - Final: terminal immutable text for the current turn/response.
//   - Started/Ended: lifecycle boundaries as reported by the remote service.
//
// All events carry a Base with their Kind and a local timestamp taken at
// construction. Consumers type-switch over the concrete types; the TurnEvent
// and ResponseEvent interfaces narrow the full set to what each stream can
// legally deliver.
package events

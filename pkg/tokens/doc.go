// Package tokens counts input tokens for inbound requests and estimates
// output tokens, using real BPE encoders rather than character heuristics.
//
// Two encoders cover the supported model families:
//
//   - o200k (200k vocabulary) for gpt-4o*, gpt-4.1*, gpt-5* and the o1/o3/o4
//     reasoning families
//   - cl100k (100k vocabulary) for everything else, including the Anthropic
//     approximation
//
// Encoders are expensive to construct, so they are built lazily on first use,
// cached for the life of the process, and released on shutdown via
// ReleaseEncoders.
//
// Counting follows the chat-markup accounting used by the upstream vendors:
// a fixed per-message overhead, an extra token for message names, and a
// trailing overhead for the assistant reply priming. The Anthropic path is an
// approximation (the vendor tokenizer is not public) and is labelled with
// reduced confidence accordingly.
package tokens

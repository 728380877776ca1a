// Package pricing holds the model price catalog and the pre-execution cost
// estimator.
//
// The catalog maps (provider, model) pairs to USD prices per million tokens.
// Lookup is tolerant by design: exact match, model-only match, alias table,
// longest-prefix rules, then a designated fallback row. A lookup never fails;
// pricing an unknown model just demotes the estimate confidence to low.
//
// Cost math is plain IEEE-754 doubles: tokens * pricePerMTok / 1_000_000.
// Values stay unrounded internally and are rounded half-up to six decimals
// only at exposure points (RoundUSD, FormatUSD), so summed costs are not
// double-rounded.
//
// An optional YAML overrides file can replace or extend the builtin table at
// startup and is hot-reloaded on change via fsnotify. Override application
// swaps a complete catalog snapshot, so concurrent lookups always see a
// consistent table.
package pricing

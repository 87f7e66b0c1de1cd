// Package matcher pairs audio captures with video captures.
//
// Pairing runs three tiers and the first tier that yields any pair decides
// the whole run:
//
//   - name: stems that occur exactly once on each side (case-insensitive)
//   - time: k-th oldest audio with k-th oldest video, by creation time
//   - order: k-th audio with k-th video, alphabetically by file name
//
// Files left over once the shorter side is exhausted are reported as excess.
// Stems that appear on both sides more than once on either side cannot be
// paired by name; when the name tier wins they are reported as skipped.
package matcher

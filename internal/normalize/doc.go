// Package normalize cleans uploaded CSV bytes.
//
// A run goes through a fixed sequence of steps:
//
//  1. Detect the source encoding from a leading sample of the input.
//  2. Decode the bytes and re-encode them to the target character set:
//     strict UTF-8 conversion, or a lossy 7-bit ASCII rendition.
//  3. Parse the text as CSV into a [Table] of typed cells.
//  4. Replace every non-printable ASCII character in text cells with a
//     visible marker such as <0x09>.
//  5. Serialize the table back to CSV, quoting every non-numeric field.
//
// Each step either succeeds completely or the whole run fails with a
// [DetectionError], [EncodingError] or [ParseError]. There is no partial
// output.
//
// The package performs no I/O and does no logging; callers hand in bytes and
// receive bytes plus a [Result] describing what happened.
package normalize

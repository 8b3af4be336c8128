// Package util provides small helpers shared by the server, storage, and
// transport packages.
//
// Key utilities:
//   - SafeTruncate: truncates codes and states before they reach a log line
//   - AppendQuery: merges query parameters into a redirect target
//   - NormalizeURL: trims trailing slashes from a configured base URL
package util

// Copyright (c) 2025 ToeiRei
// Ferry - pooled SSH command transport
// This source code is licensed under the MIT license found in the LICENSE file.

package transport

import (
	"regexp"
	"strings"
)

// safeToken matches tokens that can be passed to a remote shell without
// quoting. Anything outside this set gets single-quoted.
var safeToken = regexp.MustCompile(`^[a-zA-Z0-9/.@_:=-]+$`)

// Quote makes a single token safe for interpolation into a remote
// shell command line. Safe tokens pass through unchanged; everything
// else is wrapped in single quotes, with embedded single quotes
// rewritten to close, escape and reopen the quoting.
func Quote(token string) string {
	if safeToken.MatchString(token) {
		return token
	}
	return "'" + strings.ReplaceAll(token, "'", `'\''`) + "'"
}

// QuoteAll quotes every token and joins them with single spaces into
// one command line.
func QuoteAll(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}
	return strings.Join(quoted, " ")
}

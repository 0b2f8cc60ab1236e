package ledger

import "github.com/google/uuid"

// ledgerIDNamespace scopes deterministicID's UUIDv5 derivation so that
// journal/account identifiers are stable across process restarts without a
// separate name-to-id lookup table.
var ledgerIDNamespace = uuid.MustParse("6c6e9e8c-6f1b-4c2b-9f1a-2e6f6e1c9a3d")

func deterministicID(key string) string {
	return uuid.NewSHA1(ledgerIDNamespace, []byte(key)).String()
}

package server

import (
	"net/http"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"arkenstone/core/events"
	"arkenstone/crypto"
	"arkenstone/native/staking"
	"arkenstone/services/indexer"
)

var knownEventTypes = []string{
	events.TypeStakingDeposited,
	events.TypeStakingWithdrawn,
	events.TypeStakingRewardsClaimed,
	events.TypeStakingRateUpdated,
	events.TypeTokenTransfer,
	events.TypeTokenMinterUpdated,
}

var folder = cases.Fold()

// textQuery returns the NFKC form of a query value so full-width or
// composed input matches the ASCII identifiers stored by the indexer.
func textQuery(r *http.Request, key string) string {
	return norm.NFKC.String(strings.TrimSpace(r.URL.Query().Get(key)))
}

// canonicalEventType matches raw against the known record types ignoring
// case. Unknown types are kept verbatim and simply match nothing.
func canonicalEventType(raw string) string {
	folded := folder.String(raw)
	for _, known := range knownEventTypes {
		if folder.String(known) == folded {
			return known
		}
	}
	return raw
}

// eventFilter reads the type, pool, account and after parameters shared by
// the event listing and the event stream.
func eventFilter(r *http.Request) (indexer.Filter, error) {
	var filter indexer.Filter
	if raw := textQuery(r, "type"); raw != "" {
		filter.Type = canonicalEventType(raw)
	}
	if raw := textQuery(r, "pool"); raw != "" {
		pool, err := staking.ParsePoolID(folder.String(raw))
		if err != nil {
			return filter, err
		}
		filter.Pool = pool.String()
	}
	if raw := textQuery(r, "account"); raw != "" {
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return filter, badRequest("invalid account: %v", err)
		}
		filter.Account = strings.ToLower(addr.Hex())
	}
	after, err := intQuery(r, "after")
	if err != nil {
		return filter, err
	}
	filter.AfterSeq = after
	return filter, nil
}

package settlement

import (
	"strings"

	"payouts-controlplane/pkg/errutil"
)

// ExternalID tags a provider payment with the release and the winnings it
// settles, as "<release id>:<winning id>,<winning id>...".
func ExternalID(releaseID string, winningIDs []string) string {
	return releaseID + ":" + strings.Join(winningIDs, ",")
}

func ParseExternalID(s string) (string, []string, error) {
	releaseID, list, ok := strings.Cut(s, ":")
	if !ok || releaseID == "" || list == "" {
		return "", nil, errutil.InvalidRequest("malformed external id "+s, nil)
	}

	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", nil, errutil.InvalidRequest("external id "+s+" names no winnings", nil)
	}
	return releaseID, ids, nil
}

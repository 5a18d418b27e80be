package service

import (
	"errors"
	"sort"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
)

func requireAdmin(c domain.Caller, action string) error {
	if !c.IsAdmin() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// canSee applies the shared scope predicate to a single row.
func canSee(c domain.Caller, ownerID int64, affiliateID *int64) bool {
	return domain.ScopeFor(c, nil, domain.ViewAll).Allows(ownerID, affiliateID)
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

// uniqueIDs drops zero and duplicate ids and sorts the rest.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

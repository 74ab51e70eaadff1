package users

import "sort"

// Role-to-permission mapping. Permissions are dotted scope.action strings.
// A bare "*" grants everything; a "scope.*" suffix wildcard expands to the
// CRUD actions for that scope; roles missing from the table fall back to the
// minimal member set instead of erroring.

var crudActions = []string{"create", "read", "update", "delete"}

// defaultPermissions is what an unmapped role grants.
var defaultPermissions = []string{"giveaways.enter", "media.search"}

// RolesToPermissions maps role names to the union of their permission lists.
// The result is sorted and deduplicated; a wildcard grant collapses it to
// exactly ["*"].
func RolesToPermissions(mappings map[string][]string, roles []string) []string {
	perms := make(map[string]struct{})
	for _, role := range roles {
		grants, ok := mappings[role]
		if !ok {
			for _, p := range defaultPermissions {
				perms[p] = struct{}{}
			}
			continue
		}
		for _, p := range grants {
			if p == "*" {
				return []string{"*"}
			}
			if len(p) > 2 && p[len(p)-2:] == ".*" {
				scope := p[:len(p)-2]
				for _, action := range crudActions {
					perms[scope+"."+action] = struct{}{}
				}
				continue
			}
			perms[p] = struct{}{}
		}
	}

	out := make([]string, 0, len(perms))
	for p := range perms {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

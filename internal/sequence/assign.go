package sequence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseAssignment reads the command-line form "lead=0,1;bass=2".
func ParseAssignment(s string) (Assignment, error) {
	a := Assignment{}
	for _, clause := range strings.Split(s, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		role, list, ok := strings.Cut(clause, "=")
		role = strings.TrimSpace(role)
		if !ok || role == "" {
			return nil, fmt.Errorf("assignment %q: want role=devices", clause)
		}
		if _, dup := a[role]; dup {
			return nil, fmt.Errorf("assignment: role %q given twice", role)
		}
		a[role] = []int{}
		for _, f := range strings.Split(list, ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			d, err := strconv.Atoi(f)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("assignment %q: bad device %q", clause, f)
			}
			a[role] = append(a[role], d)
		}
	}
	return a, nil
}

// String is the inverse of ParseAssignment, with roles sorted.
func (a Assignment) String() string {
	roles := make([]string, 0, len(a))
	for r := range a {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	clauses := make([]string, len(roles))
	for i, r := range roles {
		ds := a.Devices(r)
		strs := make([]string, len(ds))
		for j, d := range ds {
			strs[j] = strconv.Itoa(d)
		}
		clauses[i] = r + "=" + strings.Join(strs, ",")
	}
	return strings.Join(clauses, ";")
}

package roles

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAssignments parses a startup role assignment list of the form
// "role:id,id;role:id". Empty input yields an empty map.
func ParseAssignments(raw string) (map[string][]int64, error) {
	out := make(map[string][]int64)
	for _, group := range strings.Split(raw, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		name, list, ok := strings.Cut(group, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("roles: malformed assignment group %q", group)
		}
		for _, tok := range strings.Split(list, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			id, err := strconv.ParseInt(tok, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("roles: bad user id %q in group %q", tok, name)
			}
			out[name] = append(out[name], id)
		}
	}
	return out, nil
}

package models

import (
	"fmt"
	"strings"

	"github.com/fedinode/fedinode/internal/snowflake"
)

// ACL is the parsed access control list of an item. An empty ACL means the
// item is public.
type ACL struct {
	AllowCID []snowflake.ID
	AllowGID []snowflake.ID
	DenyCID  []snowflake.ID
	DenyGID  []snowflake.ID
}

// IsEmpty reports whether the ACL names nobody.
func (a ACL) IsEmpty() bool {
	return len(a.AllowCID)+len(a.AllowGID)+len(a.DenyCID)+len(a.DenyGID) == 0
}

// ParseACLField parses the bracketed list form used to store ACL columns,
// eg. "<12><34>".
func ParseACLField(s string) ([]snowflake.ID, error) {
	s = strings.TrimSpace(s)
	var ids []snowflake.ID
	for s != "" {
		if s[0] != '<' {
			return nil, fmt.Errorf("acl: expected '<' at %q", s)
		}
		end := strings.IndexByte(s, '>')
		if end < 0 {
			return nil, fmt.Errorf("acl: unterminated entry %q", s)
		}
		id, err := snowflake.Parse(strings.TrimSpace(s[1:end]))
		if err != nil {
			return nil, fmt.Errorf("acl: %w", err)
		}
		ids = append(ids, id)
		s = strings.TrimSpace(s[end+1:])
	}
	return ids, nil
}

// FormatACL returns the bracketed list form of ids.
func FormatACL(ids ...snowflake.ID) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString("<")
		sb.WriteString(id.String())
		sb.WriteString(">")
	}
	return sb.String()
}

func parseACL(allowCID, allowGID, denyCID, denyGID string) (ACL, bool) {
	var acl ACL
	for _, f := range []struct {
		src string
		dst *[]snowflake.ID
	}{
		{allowCID, &acl.AllowCID},
		{allowGID, &acl.AllowGID},
		{denyCID, &acl.DenyCID},
		{denyGID, &acl.DenyGID},
	} {
		ids, err := ParseACLField(f.src)
		if err != nil {
			return ACL{}, false
		}
		*f.dst = ids
	}
	return acl, true
}

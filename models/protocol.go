package models

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Protocol identifies the federation protocol spoken by a contact.
type Protocol string

const (
	DFRN     Protocol = "dfrn"
	Diaspora Protocol = "dspr"
	OStatus  Protocol = "stat"
	PumpIO   Protocol = "pump"
	Feed     Protocol = "feed"
	Mail     Protocol = "mail"
	// Phantom marks a reference which could not be resolved.
	Phantom Protocol = "phantom"
)

// Protocols lists every protocol in resolution priority order.
var Protocols = []Protocol{DFRN, Diaspora, OStatus, PumpIO, Feed, Mail, Phantom}

func (Protocol) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "enum('dfrn', 'dspr', 'stat', 'pump', 'feed', 'mail', 'phantom')"
	case "postgres":
		return "varchar(8)"
	case "sqlite":
		return "TEXT"
	default:
		return ""
	}
}

// ParseProtocol returns the Protocol named by s. The empty string is valid
// and means no protocol filter.
func ParseProtocol(s string) (Protocol, error) {
	if s == "" {
		return "", nil
	}
	for _, p := range Protocols {
		if string(p) == s || strings.EqualFold(p.Name(), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown protocol %q", s)
}

// Name returns the human readable protocol name.
func (p Protocol) Name() string {
	switch p {
	case DFRN:
		return "DFRN"
	case Diaspora:
		return "Diaspora"
	case OStatus:
		return "OStatus"
	case PumpIO:
		return "PumpIO"
	case Feed:
		return "Feed"
	case Mail:
		return "Mail"
	case Phantom:
		return "Phantom"
	default:
		return string(p)
	}
}

// Relationship describes who follows whom between a local user and a contact.
type Relationship int

const (
	// Follower contacts follow the local user.
	Follower Relationship = 1
	// Sharing contacts are followed by the local user but do not follow back.
	Sharing Relationship = 2
	// Friend contacts follow each other.
	Friend Relationship = 3
)

// ForumMode is set on community accounts and the posts they own.
type ForumMode int

const (
	NotForum     ForumMode = 0
	PublicForum  ForumMode = 1
	PrivateForum ForumMode = 2
)

// NormaliseLink returns the form of u used to compare contact URLs: scheme
// and host lower cased, https folded to http, a leading www. removed and no
// trailing slash.
func NormaliseLink(u string) string {
	u = strings.TrimSpace(u)
	scheme, rest, ok := strings.Cut(u, "://")
	if !ok {
		return strings.TrimRight(u, "/")
	}
	scheme = strings.ToLower(scheme)
	if scheme == "https" {
		scheme = "http"
	}
	host, path, hasPath := strings.Cut(rest, "/")
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	r := scheme + "://" + host
	if hasPath {
		r += "/" + path
	}
	return strings.TrimRight(r, "/")
}

// LinkCompare reports whether a and b name the same resource.
func LinkCompare(a, b string) bool {
	return NormaliseLink(a) == NormaliseLink(b)
}

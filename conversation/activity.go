package conversation

import (
	"bytes"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
)

// page is one page of a StatusNet conversation endpoint.
type page struct {
	Items []*activity `json:"items"`
}

// activity is an Activity Streams 1.0 entry as served by StatusNet and
// GNU social.
type activity struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Verb       string     `json:"verb"`
	Published  string     `json:"published"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Actor      actor      `json:"actor"`
	Object     objects    `json:"object"`
	To         []actor    `json:"to"`
	Context    threadRef  `json:"context"`
	Provider   provider   `json:"provider"`
	NoticeInfo noticeInfo `json:"statusnet_notice_info"`
}

type actor struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
	Image       struct {
		URL string `json:"url"`
	} `json:"image"`
	Contact struct {
		DisplayName string `json:"displayName"`
	} `json:"contact"`
	PortableContacts struct {
		DisplayName string `json:"displayName"`
	} `json:"portablecontacts_net"`
}

type threadRef struct {
	InReplyTo *struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"inReplyTo"`
}

type provider struct {
	URL         string `json:"url"`
	DisplayName string `json:"displayName"`
}

type noticeInfo struct {
	LocalID string `json:"local_id"`
	Source  string `json:"source"`
}

// objects holds the object of an activity, which some servers send as a
// one element array.
type objects []*activity

func (o *objects) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*o = nil
		return nil
	case b[0] == '[':
		var list []*activity
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*o = list
		return nil
	default:
		var a activity
		if err := json.Unmarshal(b, &a); err != nil {
			return err
		}
		*o = objects{&a}
		return nil
	}
}

// first returns the activity's object, if any.
func (o objects) first() *activity {
	if len(o) == 0 {
		return nil
	}
	return o[0]
}

// key returns the identity of the entry. Entries without an id are named
// after their notice number.
func (a *activity) key() string {
	if a.ID == "" && a.Provider.URL != "" && a.NoticeInfo.LocalID != "" {
		return strings.TrimRight(a.Provider.URL, "/") + "/notice/" + a.NoticeInfo.LocalID
	}
	return a.ID
}

// link returns the profile URL of the actor.
func (a *actor) link() string {
	if a.URL != "" {
		return a.URL
	}
	return a.ID
}

func (a *actor) name() string {
	switch {
	case a.DisplayName != "":
		return a.DisplayName
	case a.Contact.DisplayName != "":
		return a.Contact.DisplayName
	default:
		return a.PortableContacts.DisplayName
	}
}

func (a *activity) published() time.Time {
	t, err := time.Parse(time.RFC3339, a.Published)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func (a *activity) inReplyTo() string {
	if a.Context.InReplyTo == nil {
		return ""
	}
	return a.Context.InReplyTo.ID
}

// decodePage decodes a conversation page.
func decodePage(b []byte) (*page, error) {
	b = bytes.ReplaceAll(b, []byte(`"statusnet:notice_info":`), []byte(`"statusnet_notice_info":`))
	var p page
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ConvertHref rewrites the tag: URIs StatusNet uses to name notices and
// conversations into their web URLs. Other references are returned as is.
//
//	tag:host,2015-01-01:conversation=12:objectType=thread -> http://host/conversation/12
//	tag:host,2015-01-01:noticeId=34:objectType=note       -> http://host/notice/34
//	tag:host,2015-01-01:post:34                           -> http://host/notice/34
func ConvertHref(href string) string {
	parts := strings.Split(href, ":")
	if len(parts) <= 2 || parts[0] != "tag" {
		return href
	}
	server, _, _ := strings.Cut(parts[1], ",")
	if len(parts) == 4 && parts[2] == "post" {
		return "http://" + server + "/notice/" + parts[3]
	}
	_, n, ok := strings.Cut(parts[2], "=")
	if !ok || n == "" {
		return href
	}
	if len(parts) > 3 && parts[3] == "objectType=thread" {
		return "http://" + server + "/conversation/" + n
	}
	return "http://" + server + "/notice/" + n
}

// Endpoint returns the Activity Streams endpoint of a conversation URL.
func Endpoint(conversation string) string {
	return strings.Replace(conversation, "/conversation/", "/api/statusnet/conversation/", 1) + ".as"
}

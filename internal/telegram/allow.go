package telegram

import (
	"strconv"
	"strings"
)

// Wildcard in an allow list admits every sender.
const Wildcard = "*"

// AllowList decides which senders may run commands. Entries are numeric
// user or chat ids, or usernames with or without a leading '@'. An empty
// list denies everyone.
type AllowList struct {
	all     bool
	entries map[string]struct{}
}

// NewAllowList builds an AllowList from config entries.
func NewAllowList(entries []string) *AllowList {
	a := &AllowList{entries: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = normalize(e)
		if e == "" {
			continue
		}
		if e == Wildcard {
			a.all = true
			continue
		}
		a.entries[e] = struct{}{}
	}
	return a
}

// Allowed reports whether msg's sender or chat is on the list.
func (a *AllowList) Allowed(msg *Message) bool {
	if a == nil || msg == nil {
		return false
	}
	if a.all {
		return true
	}

	keys := []string{strconv.FormatInt(msg.Chat.ID, 10)}
	if msg.From != nil {
		keys = append(keys, strconv.FormatInt(msg.From.ID, 10))
		if msg.From.Username != "" {
			keys = append(keys, normalize(msg.From.Username))
		}
	}
	for _, k := range keys {
		if _, ok := a.entries[k]; ok {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "@")
}

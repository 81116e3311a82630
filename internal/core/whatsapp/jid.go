package whatsapp

import "strings"

// NormalizeNumber turns a JID such as "62812345@s.whatsapp.net",
// "62812345:12@s.whatsapp.net" or "+62812345" into the bare number the
// gateways expect. Group JIDs are returned unchanged.
func NormalizeNumber(jid string) string {
	jid = strings.TrimSpace(jid)
	if IsGroupJID(jid) {
		return jid
	}
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		jid = jid[:i]
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		jid = jid[:i]
	}
	return strings.TrimPrefix(jid, "+")
}

func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}

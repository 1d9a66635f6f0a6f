package mqtt

import "strings"

// Topics builds the topic names under one prefix, e.g. "camsrv":
//
//	camsrv/command/<command>   requests
//	camsrv/reply/<command>     replies
//	camsrv/events              controller events
//	camsrv/state               retained controller phase
//	camsrv/status              retained online/offline (last will)
type Topics struct {
	Prefix string
}

// Command returns the request topic for a command.
func (t Topics) Command(name string) string { return t.Prefix + "/command/" + name }

// CommandFilter matches every command topic.
func (t Topics) CommandFilter() string { return t.Prefix + "/command/+" }

// Reply returns the reply topic for a command.
func (t Topics) Reply(name string) string { return t.Prefix + "/reply/" + name }

// Events is where controller events are published.
func (t Topics) Events() string { return t.Prefix + "/events" }

// State holds the retained controller phase.
func (t Topics) State() string { return t.Prefix + "/state" }

// Status holds the retained online/offline marker.
func (t Topics) Status() string { return t.Prefix + "/status" }

// CommandName extracts the command from a request topic.
func (t Topics) CommandName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.Prefix+"/command/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

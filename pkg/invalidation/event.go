package invalidation

import (
	"fmt"
	"strings"
	"time"
)

// Domain is the area of the data model an event refers to.
type Domain string

const (
	DomainUser        Domain = "user"
	DomainData        Domain = "data"
	DomainAPI         Domain = "api"
	DomainPerformance Domain = "performance"
	DomainGlobal      Domain = "global"
)

// Action is what happened to the data.
type Action string

const (
	ActionCreate         Action = "create"
	ActionUpdate         Action = "update"
	ActionDelete         Action = "delete"
	ActionBulkUpdate     Action = "bulk_update"
	ActionResponseChange Action = "response_change"
	ActionDeployment     Action = "deployment"
)

// EventKind is the closed set of events the engine understands.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindUserCreate
	KindUserUpdate
	KindUserDelete
	KindUserBulkUpdate
	KindDataCreate
	KindDataUpdate
	KindDataDelete
	KindDataBulkUpdate
	KindAPIResponseChange
	KindPerformanceUpdate
	KindGlobalDeployment
)

type kindKey struct {
	domain Domain
	action Action
}

var kindKeys = map[EventKind]kindKey{
	KindUserCreate:        {DomainUser, ActionCreate},
	KindUserUpdate:        {DomainUser, ActionUpdate},
	KindUserDelete:        {DomainUser, ActionDelete},
	KindUserBulkUpdate:    {DomainUser, ActionBulkUpdate},
	KindDataCreate:        {DomainData, ActionCreate},
	KindDataUpdate:        {DomainData, ActionUpdate},
	KindDataDelete:        {DomainData, ActionDelete},
	KindDataBulkUpdate:    {DomainData, ActionBulkUpdate},
	KindAPIResponseChange: {DomainAPI, ActionResponseChange},
	KindPerformanceUpdate: {DomainPerformance, ActionUpdate},
	KindGlobalDeployment:  {DomainGlobal, ActionDeployment},
}

var kindsByKey = func() map[kindKey]EventKind {
	m := make(map[kindKey]EventKind, len(kindKeys))
	for kind, key := range kindKeys {
		m[key] = kind
	}
	return m
}()

// KindOf maps a domain and action to its kind, or KindUnknown.
func KindOf(domain Domain, action Action) EventKind {
	return kindsByKey[kindKey{domain, action}]
}

// String returns the "domain:action" form of the kind.
func (k EventKind) String() string {
	key, ok := kindKeys[k]
	if !ok {
		return "unknown"
	}
	return string(key.domain) + ":" + string(key.action)
}

// Domain returns the domain of the kind.
func (k EventKind) Domain() Domain {
	return kindKeys[k].domain
}

// DomainKinds returns every kind of a domain, in declaration order.
func DomainKinds(domain Domain) []EventKind {
	var kinds []EventKind
	for k := KindUserCreate; k <= KindGlobalDeployment; k++ {
		if kindKeys[k].domain == domain {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// ParseKinds parses "domain:action" or "domain:*" into kinds.
func ParseKinds(s string) ([]EventKind, error) {
	domain, action, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || domain == "" || action == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	if action == "*" {
		kinds := DomainKinds(Domain(domain))
		if len(kinds) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, s)
		}
		return kinds, nil
	}
	kind := KindOf(Domain(domain), Action(action))
	if kind == KindUnknown {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
	return []EventKind{kind}, nil
}

// Event notifies the engine that underlying data changed.
type Event struct {
	Domain         Domain         `json:"domain"`
	Action         Action         `json:"action"`
	EntityID       string         `json:"entity_id,omitempty"`
	AffectedFields []string       `json:"affected_fields,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Kind returns the kind of the event.
func (e Event) Kind() EventKind {
	return KindOf(e.Domain, e.Action)
}

// Key returns "domain:action".
func (e Event) Key() string {
	return string(e.Domain) + ":" + string(e.Action)
}

package rule

import (
	"fmt"
	"strings"
)

// EventKind is a bitmask of filesystem notification kinds. Rules request a
// union of kinds; the notifier reports each raw notification as the set of
// kinds it may represent.
type EventKind uint32

const (
	Create EventKind = 1 << iota
	Modify
	CloseWrite
	Delete
	DeleteSelf
	MovedFrom
	MovedTo
	MoveSelf
	Attrib
)

// AllEvents is every kind the engine can observe.
const AllEvents = Create | Modify | CloseWrite | Delete | DeleteSelf |
	MovedFrom | MovedTo | MoveSelf | Attrib

var kindNames = []struct {
	kind EventKind
	name string
}{
	{Create, "CREATE"},
	{Modify, "MODIFY"},
	{CloseWrite, "CLOSE_WRITE"},
	{Delete, "DELETE"},
	{DeleteSelf, "DELETE_SELF"},
	{MovedFrom, "MOVED_FROM"},
	{MovedTo, "MOVED_TO"},
	{MoveSelf, "MOVE_SELF"},
	{Attrib, "ATTRIB"},
}

// Contains reports whether any kind in other is present in the mask.
func (k EventKind) Contains(other EventKind) bool {
	return k&other != 0
}

func (k EventKind) String() string {
	if k == 0 {
		return "NONE"
	}
	parts := make([]string, 0, 4)
	for _, entry := range kindNames {
		if k&entry.kind != 0 {
			parts = append(parts, entry.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("UNKNOWN(%#x)", uint32(k))
	}
	return strings.Join(parts, "|")
}

// UnsupportedEventError marks event names the notification backend cannot
// observe. Callers treat the owning rule as misconfigured and skip it.
type UnsupportedEventError struct {
	Name string
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("unsupported event name %q", e.Name)
}

// ParseEventName resolves one configured event name to a kind mask. Names may
// carry the classic IN_ prefix. MOVE, CLOSE and ALL_EVENTS expand to unions.
func ParseEventName(name string) (EventKind, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(name))
	trimmed = strings.TrimPrefix(trimmed, "IN_")

	switch trimmed {
	case "CREATE":
		return Create, nil
	case "MODIFY":
		return Modify, nil
	case "CLOSE_WRITE":
		return CloseWrite, nil
	case "DELETE":
		return Delete, nil
	case "DELETE_SELF":
		return DeleteSelf, nil
	case "MOVED_FROM":
		return MovedFrom, nil
	case "MOVED_TO":
		return MovedTo, nil
	case "MOVE_SELF":
		return MoveSelf, nil
	case "ATTRIB":
		return Attrib, nil
	case "MOVE":
		return MovedFrom | MovedTo, nil
	case "CLOSE":
		return CloseWrite, nil
	case "ALL_EVENTS":
		return AllEvents, nil
	case "ACCESS", "OPEN", "CLOSE_NOWRITE",
		"DONT_FOLLOW", "EXCL_UNLINK", "MASK_ADD", "ONESHOT", "ONLYDIR":
		return 0, &UnsupportedEventError{Name: name}
	default:
		return 0, fmt.Errorf("unknown event name %q", name)
	}
}

// ParseEvents unions the kinds for a rule's configured event names. It fails
// if any name is invalid or the resulting mask is empty.
func ParseEvents(names []string) (EventKind, error) {
	var mask EventKind
	for _, name := range names {
		kind, err := ParseEventName(name)
		if err != nil {
			return 0, err
		}
		mask |= kind
	}
	if mask == 0 {
		return 0, fmt.Errorf("no events requested")
	}
	return mask, nil
}

package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// ID is the opaque token naming a tenant. The zero value Nil means "no tenant".
// IDs compare with == and have a deterministic string form; callers that need
// UUID semantics (e.g. the control store) convert explicitly via UUID().
type ID string

// Nil is the distinguished empty identifier.
const Nil ID = ""

// ParseID normalizes raw text into an ID. Whitespace-only input yields Nil.
func ParseID(raw string) ID {
	return ID(strings.TrimSpace(raw))
}

// IDFromUUID builds an ID from a UUID. The nil UUID maps to Nil.
func IDFromUUID(u uuid.UUID) ID {
	if u == uuid.Nil {
		return Nil
	}
	return ID(u.String())
}

// IsNil reports whether the identifier is the empty/default value.
func (id ID) IsNil() bool {
	return id == Nil
}

func (id ID) String() string {
	return string(id)
}

// UUID converts the identifier to a UUID. Control-store backed operations
// require UUID-convertible identifiers; everything else treats IDs as opaque.
func (id ID) UUID() (uuid.UUID, error) {
	return uuid.Parse(string(id))
}

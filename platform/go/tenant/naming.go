package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrInvalidSchemaName is returned when a generated schema name fails the
// naming policy (empty, too long, ill-formed, or a reserved keyword).
var ErrInvalidSchemaName = errors.New("invalid schema name")

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// reservedSchemaWords are identifiers PostgreSQL will not accept unquoted or
// that we refuse to let a tenant shadow. Schema names must never be quoted
// into these.
var reservedSchemaWords = map[string]struct{}{
	"all": {}, "analyse": {}, "analyze": {}, "and": {}, "any": {}, "array": {},
	"as": {}, "asc": {}, "between": {}, "case": {}, "cast": {}, "check": {},
	"column": {}, "constraint": {}, "create": {}, "current_user": {},
	"default": {}, "desc": {}, "distinct": {}, "do": {}, "else": {}, "end": {},
	"false": {}, "from": {}, "grant": {}, "group": {}, "having": {}, "in": {},
	"index": {}, "information_schema": {}, "into": {}, "join": {}, "limit": {},
	"not": {}, "null": {}, "on": {}, "or": {}, "order": {}, "pg_catalog": {},
	"primary": {}, "public": {}, "references": {}, "select": {}, "session_user": {},
	"table": {}, "then": {}, "to": {}, "true": {}, "union": {}, "unique": {},
	"user": {}, "using": {}, "when": {}, "where": {}, "with": {},
}

const softDeleteTimestampLayout = "20060102150405"

// NamerOptions configures the schema naming policy.
type NamerOptions struct {
	// SchemaPrefix prepends every tenant schema name. Default "tenant_".
	SchemaPrefix string
	// SharedSchemaName is the schema holding cross-tenant objects. Default "shared".
	SharedSchemaName string
	// ArchivedSchemaPrefix prepends archived schema names. Default "archived_".
	ArchivedSchemaPrefix string
	// MaxNameLength caps generated names. Default 63, the PostgreSQL
	// identifier limit.
	MaxNameLength int
	// ValidateNames enables rejection of ill-formed or reserved names.
	ValidateNames bool
	// Generator optionally replaces the default sanitize-and-prefix mapping.
	// Its output is still validated when ValidateNames is set, so a custom
	// generator cannot bypass the policy.
	Generator func(ID) string
}

func (o NamerOptions) withDefaults() NamerOptions {
	if o.SchemaPrefix == "" {
		o.SchemaPrefix = "tenant_"
	}
	if o.SharedSchemaName == "" {
		o.SharedSchemaName = "shared"
	}
	if o.ArchivedSchemaPrefix == "" {
		o.ArchivedSchemaPrefix = "archived_"
	}
	if o.MaxNameLength <= 0 {
		o.MaxNameLength = 63
	}
	return o
}

// Namer maps tenant identifiers to physical schema names and back.
// GenerateName is deterministic for a given identifier apart from an
// injectable custom generator; the mapping is lossy, so ExtractIdentifier is
// only an approximate inverse.
type Namer struct {
	opts NamerOptions
}

// NewNamer builds a Namer, validating the configured prefixes.
func NewNamer(opts NamerOptions) (*Namer, error) {
	opts = opts.withDefaults()
	if opts.ValidateNames {
		for _, prefix := range []string{opts.SchemaPrefix, opts.ArchivedSchemaPrefix} {
			if !schemaNamePattern.MatchString(prefix) {
				return nil, fmt.Errorf("%w: prefix %q must match %s", ErrInvalidSchemaName, prefix, schemaNamePattern)
			}
		}
	}
	return &Namer{opts: opts}, nil
}

// Options returns the effective configuration after defaulting.
func (n *Namer) Options() NamerOptions {
	return n.opts
}

// Sanitize lowercases the input and replaces every character outside
// [a-z0-9_] with an underscore.
func Sanitize(raw string) string {
	lowered := strings.ToLower(raw)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// GenerateName computes the physical schema name for a tenant.
func (n *Namer) GenerateName(id ID) (string, error) {
	if id.IsNil() {
		return "", fmt.Errorf("%w: empty tenant identifier", ErrInvalidSchemaName)
	}

	var name string
	if n.opts.Generator != nil {
		name = n.opts.Generator(id)
	} else {
		name = n.opts.SchemaPrefix + Sanitize(id.String())
	}

	if n.opts.ValidateNames {
		if err := n.validate(name); err != nil {
			return "", err
		}
	}
	return name, nil
}

// ArchiveName computes the fixed archived variant of the tenant's schema.
// The derived name is validated like GenerateName's output: Postgres
// truncates identifiers past the limit, which would let distinct archived
// names collide.
func (n *Namer) ArchiveName(id ID) (string, error) {
	name, err := n.GenerateName(id)
	if err != nil {
		return "", err
	}
	archived := n.opts.ArchivedSchemaPrefix + name
	if n.opts.ValidateNames {
		if err := n.validate(archived); err != nil {
			return "", err
		}
	}
	return archived, nil
}

// SoftDeleteName computes a timestamped archived name so repeated soft
// deletes never collide. The timestamp is UTC yyyyMMddHHmmss. Like
// ArchiveName, the derived name is validated so identifier truncation cannot
// merge two snapshots.
func (n *Namer) SoftDeleteName(id ID, now time.Time) (string, error) {
	name, err := n.GenerateName(id)
	if err != nil {
		return "", err
	}
	deleted := n.opts.ArchivedSchemaPrefix + name + "_" + now.UTC().Format(softDeleteTimestampLayout)
	if n.opts.ValidateNames {
		if err := n.validate(deleted); err != nil {
			return "", err
		}
	}
	return deleted, nil
}

// ExtractIdentifier strips the configured prefix from a schema name, returning
// the name unchanged when the prefix is absent. Sanitization is not
// invertible, so the result is only an approximation of the original
// identifier's string form.
func (n *Namer) ExtractIdentifier(schemaName string) string {
	return strings.TrimPrefix(schemaName, n.opts.SchemaPrefix)
}

func (n *Namer) validate(name string) error {
	if name == "" {
		return fmt.Errorf("%w: generated name is empty", ErrInvalidSchemaName)
	}
	if len(name) > n.opts.MaxNameLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidSchemaName, name, n.opts.MaxNameLength)
	}
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidSchemaName, name, schemaNamePattern)
	}
	if _, reserved := reservedSchemaWords[name]; reserved {
		return fmt.Errorf("%w: %q is a reserved word", ErrInvalidSchemaName, name)
	}
	return nil
}

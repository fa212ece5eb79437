package tenant

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateName(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{SchemaPrefix: "tenant_", ValidateNames: true})
	require.NoError(t, err)

	tests := []struct {
		name        string
		id          ID
		expect      string
		expectError bool
	}{
		{
			name:   "sanitizes mixed case and dashes",
			id:     "Acme-Corp",
			expect: "tenant_acme_corp",
		},
		{
			name:   "keeps already clean identifiers",
			id:     "acme",
			expect: "tenant_acme",
		},
		{
			name:   "replaces spaces and symbols",
			id:     "Big Co. (EU)",
			expect: "tenant_big_co___eu_",
		},
		{
			name:        "rejects empty identifier",
			id:          Nil,
			expectError: true,
		},
		{
			name:        "rejects names over the length cap",
			id:          ID(strings.Repeat("a", 80)),
			expectError: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := namer.GenerateName(tc.id)
			if tc.expectError {
				require.ErrorIs(t, err, ErrInvalidSchemaName)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, got)
		})
	}
}

func TestGenerateNameDeterministic(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{ValidateNames: true})
	require.NoError(t, err)

	first, err := namer.GenerateName("Acme-Corp")
	require.NoError(t, err)

	// Interleave other identifiers; the mapping must not depend on call order.
	_, err = namer.GenerateName("other")
	require.NoError(t, err)

	second, err := namer.GenerateName("Acme-Corp")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestGenerateNameValidatesCustomGenerator(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{
		ValidateNames: true,
		Generator:     func(id ID) string { return "Bad-Name!" },
	})
	require.NoError(t, err)

	_, err = namer.GenerateName("acme")
	require.ErrorIs(t, err, ErrInvalidSchemaName)
}

func TestGenerateNameRejectsReservedWords(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{
		ValidateNames: true,
		Generator:     func(id ID) string { return "select" },
	})
	require.NoError(t, err)

	_, err = namer.GenerateName("anything")
	require.ErrorIs(t, err, ErrInvalidSchemaName)
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect string
	}{
		{"Acme-Corp", "acme_corp"},
		{"UPPER", "upper"},
		{"with space", "with_space"},
		{"unicode-é", "unicode__"},
		{"ok_123", "ok_123"},
	}

	for _, tc := range tests {
		got := Sanitize(tc.input)
		require.Equal(t, tc.expect, got)
		require.Regexp(t, `^[a-z0-9_]*$`, got)
	}
}

func TestArchiveAndSoftDeleteNames(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{
		SchemaPrefix:         "tenant_",
		ArchivedSchemaPrefix: "archived_",
		ValidateNames:        true,
	})
	require.NoError(t, err)

	archived, err := namer.ArchiveName("acme")
	require.NoError(t, err)
	require.Equal(t, "archived_tenant_acme", archived)

	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	soft, err := namer.SoftDeleteName("acme", at)
	require.NoError(t, err)
	require.Equal(t, "archived_tenant_acme_20260314092653", soft)
}

func TestDerivedNamesRejectOverlongIdentifiers(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{
		SchemaPrefix:         "tenant_",
		ArchivedSchemaPrefix: "archived_",
		ValidateNames:        true,
	})
	require.NoError(t, err)

	// 56 chars of slug + "tenant_" lands exactly on the 63-byte Postgres
	// limit: the live schema is fine, but every derived name would be
	// silently truncated, letting two soft-delete snapshots collide.
	id := ID(strings.Repeat("a", 56))

	name, err := namer.GenerateName(id)
	require.NoError(t, err)
	require.Len(t, name, 63)

	_, err = namer.ArchiveName(id)
	require.ErrorIs(t, err, ErrInvalidSchemaName)

	_, err = namer.SoftDeleteName(id, time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC))
	require.ErrorIs(t, err, ErrInvalidSchemaName)
}

func TestExtractIdentifier(t *testing.T) {
	t.Parallel()

	namer, err := NewNamer(NamerOptions{SchemaPrefix: "tenant_"})
	require.NoError(t, err)

	require.Equal(t, "acme", namer.ExtractIdentifier("tenant_acme"))
	require.Equal(t, "unrelated", namer.ExtractIdentifier("unrelated"))
}

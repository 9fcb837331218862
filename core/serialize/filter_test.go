package serialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wira-labs/go-muundo/core/schema"
)

func compileAccount(t *testing.T) *schema.CompiledSchema {
	t.Helper()

	email := schema.Primitive(schema.PrimitiveString)
	email.ReadScopes = []string{"admin", "owner"}

	secret := schema.Primitive(schema.PrimitiveString)
	secret.ReadScopes = []string{"admin"}

	note := schema.Primitive(schema.PrimitiveString)
	note.ReadScopes = []string{"admin"}

	display := &schema.AttributeNode{Derive: "upper(name)"}
	display.ReadScopes = []string{"admin"}

	cs, err := schema.Compile("Account", map[string]*schema.AttributeNode{
		"name":  schema.Primitive(schema.PrimitiveString),
		"email": email,
		"profile": schema.ObjectOf(map[string]*schema.AttributeNode{
			"bio":    schema.Primitive(schema.PrimitiveText),
			"secret": secret,
		}),
		"notes":       schema.ArrayOf(note),
		"displayName": display,
	})
	require.NoError(t, err)
	return cs
}

func TestScopeSet(t *testing.T) {
	s := NewScopeSet("admin", "owner")
	assert.True(t, s.Contains("admin"))
	assert.False(t, s.Contains("support"))
}

func TestRedactTopLevelFields(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{
		"id":    "1",
		"name":  "Ada",
		"email": "ada@example.com",
	}

	public := Redact(doc, cs, NewScopeSet())
	assert.Equal(t, "Ada", public["name"])
	assert.NotContains(t, public, "email")
	assert.Equal(t, "1", public["id"], "reserved fields pass through")

	owner := Redact(doc, cs, NewScopeSet("owner"))
	assert.Equal(t, "ada@example.com", owner["email"])
}

func TestRedactDescendsIntoObjects(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{
		"name": "Ada",
		"profile": map[string]any{
			"bio":    "mathematician",
			"secret": "s3cret",
		},
	}

	public := Redact(doc, cs, NewScopeSet())
	profile, ok := public["profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "mathematician", profile["bio"])
	assert.NotContains(t, profile, "secret")

	admin := Redact(doc, cs, NewScopeSet("admin"))
	adminProfile := admin["profile"].(map[string]any)
	assert.Equal(t, "s3cret", adminProfile["secret"])
}

func TestRedactArrayElementScopes(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{
		"name":  "Ada",
		"notes": []any{"note one", "note two"},
	}

	public := Redact(doc, cs, NewScopeSet())
	notes, ok := public["notes"].([]any)
	require.True(t, ok)
	assert.Empty(t, notes)

	admin := Redact(doc, cs, NewScopeSet("admin"))
	assert.Equal(t, []any{"note one", "note two"}, admin["notes"])
}

func TestRedactPrivatePrefix(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{
		"name":      "Ada",
		"_internal": "never leaves",
	}

	out := Redact(doc, cs, NewScopeSet("admin"))
	assert.NotContains(t, out, "_internal")
}

func TestRedactAccessorScopes(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{
		"name":        "Ada",
		"displayName": "ADA",
	}

	public := Redact(doc, cs, NewScopeSet())
	assert.NotContains(t, public, "displayName")

	admin := Redact(doc, cs, NewScopeSet("admin"))
	assert.Equal(t, "ADA", admin["displayName"])
}

func TestRedactKeepsUndeclaredKeys(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{"name": "Ada", "legacy": 42}

	out := Redact(doc, cs, NewScopeSet())
	assert.Equal(t, 42, out["legacy"])
}

func TestRedactDoesNotMutateInput(t *testing.T) {
	cs := compileAccount(t)
	doc := schema.Document{"name": "Ada", "email": "ada@example.com"}

	_ = Redact(doc, cs, NewScopeSet())
	assert.Equal(t, "ada@example.com", doc["email"])
}

package dynamicfield

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bayanat/internal/entity/models"
)

func TestCheckName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"dob", false},
		{"case_number_2", false},
		{"", true},
		{"_hidden", true},
		{"2fast", true},
		{"Upper", true},
		{"has-dash", true},
		{"select", true},
		{"id", true},
		{"a_very_long_name_that_keeps_going_past_the_postgres_identifier_limit", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func field(fieldType string) *models.DynamicField {
	return &models.DynamicField{Name: "extra", Title: "Extra", EntityType: models.ClassActor, FieldType: fieldType}
}

func TestNormalize(t *testing.T) {
	t.Run("defaults component and documents", func(t *testing.T) {
		f := field(models.FieldDatetime)
		require.NoError(t, Normalize(f))
		assert.Equal(t, "date_picker", f.UIComponent)
		assert.JSONEq(t, `{}`, string(f.SchemaConfig))
		assert.JSONEq(t, `[]`, string(f.Options))
	})

	t.Run("rejects incompatible component", func(t *testing.T) {
		f := field(models.FieldBoolean)
		f.UIComponent = "textarea"
		assert.Error(t, Normalize(f))
	})

	t.Run("dropdown needs options", func(t *testing.T) {
		f := field(models.FieldString)
		f.UIComponent = "dropdown"
		assert.Error(t, Normalize(f))
		f.Options = models.JSONB(`[{"id": 1, "label": "a"}]`)
		assert.NoError(t, Normalize(f))
	})

	t.Run("rejects location and unknown types", func(t *testing.T) {
		f := field(models.FieldString)
		f.EntityType = models.ClassLocation
		assert.Error(t, Normalize(f))
		assert.Error(t, Normalize(field("money")))
	})
}

func TestSQLType(t *testing.T) {
	long := field(models.FieldString)
	long.SchemaConfig = models.JSONB(`{"max_length": 255}`)

	assert.Equal(t, "varchar(100)", SQLType(field(models.FieldString)))
	assert.Equal(t, "varchar(255)", SQLType(long))
	assert.Equal(t, "text", SQLType(field(models.FieldText)))
	assert.Equal(t, "integer", SQLType(field(models.FieldInteger)))
	assert.Equal(t, "timestamptz", SQLType(field(models.FieldDatetime)))
	assert.Equal(t, "varchar[]", SQLType(field(models.FieldArray)))
	assert.Equal(t, "boolean", SQLType(field(models.FieldBoolean)))
	assert.Equal(t, "double precision", SQLType(field(models.FieldFloat)))
	assert.Equal(t, "jsonb", SQLType(field(models.FieldJSON)))
}

func TestDDL(t *testing.T) {
	f := field(models.FieldDatetime)
	f.Name = "dob"
	assert.Equal(t, `ALTER TABLE "actor" ADD COLUMN IF NOT EXISTS "dob" timestamptz`, addColumnSQL(f))
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "ix_actor_dob" ON "actor" ("dob")`, createIndexSQL(f))

	f.FieldType = models.FieldText
	f.Required = true
	assert.Equal(t, `ALTER TABLE "actor" ADD COLUMN IF NOT EXISTS "dob" text NOT NULL DEFAULT ''`, addColumnSQL(f))
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "ix_actor_dob" ON "actor" USING gin ("dob" gin_trgm_ops)`, createIndexSQL(f))
	assert.Equal(t, `DROP INDEX IF EXISTS "ix_actor_dob"`, dropIndexSQL(f))
	assert.Equal(t, `ALTER TABLE "actor" DROP COLUMN IF EXISTS "dob"`, dropColumnSQL(f))
}

func TestCoerce(t *testing.T) {
	t.Run("datetime", func(t *testing.T) {
		v, err := Coerce(field(models.FieldDatetime), json.RawMessage(`"1990-01-01"`))
		require.NoError(t, err)
		assert.Equal(t, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), v)
	})

	t.Run("string length", func(t *testing.T) {
		f := field(models.FieldString)
		f.SchemaConfig = models.JSONB(`{"max_length": 3}`)
		_, err := Coerce(f, json.RawMessage(`"abcd"`))
		assert.Error(t, err)
		v, err := Coerce(f, json.RawMessage(`"abc"`))
		require.NoError(t, err)
		assert.Equal(t, "abc", v)
	})

	t.Run("integer range", func(t *testing.T) {
		f := field(models.FieldInteger)
		f.ValidationConfig = models.JSONB(`{"min": 0, "max": 10}`)
		_, err := Coerce(f, json.RawMessage(`11`))
		assert.Error(t, err)
		_, err = Coerce(f, json.RawMessage(`1.5`))
		assert.Error(t, err)
		v, err := Coerce(f, json.RawMessage(`7`))
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})

	t.Run("array and json", func(t *testing.T) {
		v, err := Coerce(field(models.FieldArray), json.RawMessage(`["a","b"]`))
		require.NoError(t, err)
		assert.Equal(t, pq.StringArray{"a", "b"}, v)

		v, err = Coerce(field(models.FieldJSON), json.RawMessage(`{"k": [1]}`))
		require.NoError(t, err)
		assert.Equal(t, `{"k": [1]}`, v)
	})

	t.Run("null", func(t *testing.T) {
		f := field(models.FieldBoolean)
		v, err := Coerce(f, json.RawMessage(`null`))
		require.NoError(t, err)
		assert.Nil(t, v)

		f.Required = true
		_, err = Coerce(f, json.RawMessage(`null`))
		assert.Error(t, err)
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1990-01-01T00:00", Format(field(models.FieldDatetime), "1990-01-01T00:00:00+00:00"))
	assert.Equal(t, int64(3), Format(field(models.FieldInteger), json.Number("3")))
	assert.Equal(t, 2.5, Format(field(models.FieldFloat), json.Number("2.5")))
	assert.Equal(t, "x", Format(field(models.FieldString), "x"))
}

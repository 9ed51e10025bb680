package models

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestOrderSchemaParsesTags(t *testing.T) {
	t.Parallel()

	s, err := schema.Parse(&Order{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	field := s.LookUpField("tags")
	require.NotNil(t, field)
	require.Equal(t, schema.DataType("text"), field.DataType)
}

func TestTagsValueAndScan(t *testing.T) {
	t.Parallel()

	v, err := Tags{"cod", "form, popup"}.Value()
	require.NoError(t, err)

	var got Tags
	require.NoError(t, got.Scan(v))
	require.Equal(t, Tags{"cod", "form, popup"}, got)
}

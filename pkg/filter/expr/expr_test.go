package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/avrostream/pkg/errors"
	"github.com/ajitpratap0/avrostream/pkg/record"
	"github.com/ajitpratap0/avrostream/pkg/schema"
)

var orderSchema = schema.MustParse(`{
  "type": "record", "name": "Order",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "qty", "type": "int"},
    {"name": "price", "type": "double"},
    {"name": "customer", "type": "string"},
    {"name": "coupon", "type": ["null", "string"]},
    {"name": "paid", "type": "boolean"},
    {"name": "status", "type": {"type": "enum", "name": "Status", "symbols": ["NEW", "SHIPPED"]}},
    {"name": "placed", "type": {"type": "long", "logicalType": "timestamp-millis"}},
    {"name": "ref", "type": ["string", "long"]}
  ]
}`)

func order(t *testing.T) *record.Record {
	t.Helper()
	r, err := record.Of(orderSchema,
		int64(1001), int32(3), 19.5, "Ada Lovelace", nil, true, "SHIPPED",
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), int64(77))
	require.NoError(t, err)
	return r
}

func TestParseMatches(t *testing.T) {
	r := order(t)

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{"id = 1001", true},
		{"id != 1001", false},
		{"id <> 1000", true},
		{"qty >= 3 AND price < 20", true},
		{"qty > 3 OR price < 20", true},
		{"qty > 3 or price > 20", false},
		{"NOT qty > 3", true},
		{"price <= 19.5", true},
		{"qty < 3.5", true},
		{`customer = "Ada Lovelace"`, true},
		{`customer > 'Ada'`, true},
		{`customer PREFIX "Ada"`, true},
		{`customer prefix "ada"`, false},
		{`customer IPREFIX "ada"`, true},
		{`customer SUFFIX "lace"`, true},
		{`customer ICONTAINS "LOVE"`, true},
		{"coupon IS NULL", true},
		{"coupon IS NOT NULL", false},
		{"coupon = NULL", true},
		{"paid = true", true},
		{"paid != TRUE", false},
		{`status = "SHIPPED"`, true},
		{`placed >= "2024-05-01"`, true},
		{`placed < "2024-05-01T09:00:00Z"`, false},
		{"ref = 77", true},
		{`ref PREFIX "7"`, true},
		{`(qty = 1 OR qty = 3) AND NOT (customer = "x" OR coupon IS NOT NULL)`, true},
		{`qty = 1 OR qty = 2 AND paid = true`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Parse(tt.expr, orderSchema)
			require.NoError(t, err)
			got, err := f.Match(r)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"qty >",
		"qty = 1 AND",
		"(qty = 1",
		"missing = 1",
		`qty = "three"`,
		`customer = 3`,
		"paid > true",
		`placed > "yesterday"`,
		"coupon < NULL",
		"qty ~ 3",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			_, err := Parse(text, orderSchema)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidArgument))
		})
	}
}

func TestNullFieldInComparison(t *testing.T) {
	f := MustParse(`coupon PREFIX "SPRING"`, orderSchema)
	_, err := f.Match(order(t))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTypeMismatch))
}

package highlight

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorToggle(t *testing.T) {
	tests := []struct {
		name     string
		steps    []Target
		want     Transition
		wantPrev Target
		active   Target
	}{
		{
			name:   "activate from none",
			steps:  []Target{Field("InvoiceTotal")},
			want:   Activated,
			active: Field("InvoiceTotal"),
		},
		{
			name:     "toggle same field clears",
			steps:    []Target{Field("InvoiceTotal"), Field("InvoiceTotal")},
			want:     Cleared,
			wantPrev: Field("InvoiceTotal"),
			active:   None(),
		},
		{
			name:     "field then line item switches",
			steps:    []Target{Field("InvoiceTotal"), LineItem(2)},
			want:     Switched,
			wantPrev: Field("InvoiceTotal"),
			active:   LineItem(2),
		},
		{
			name:     "different line item switches",
			steps:    []Target{LineItem(0), LineItem(1)},
			want:     Switched,
			wantPrev: LineItem(0),
			active:   LineItem(1),
		},
		{
			name:     "none clears active",
			steps:    []Target{LineItem(3), None()},
			want:     Cleared,
			wantPrev: LineItem(3),
			active:   None(),
		},
		{
			name:   "none on none is unchanged",
			steps:  []Target{None()},
			want:   Unchanged,
			active: None(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Selector
			var tr Transition
			var prev Target
			for _, step := range tt.steps {
				tr, prev = s.Toggle(step)
			}
			assert.Equal(t, tt.want, tr)
			assert.Equal(t, tt.wantPrev, prev)
			assert.Equal(t, tt.active, s.Active())
		})
	}
}

func TestSelectorClear(t *testing.T) {
	var s Selector
	s.Toggle(Field("DueDate"))
	assert.Equal(t, Field("DueDate"), s.Clear())
	assert.True(t, s.Active().IsNone())
	assert.True(t, s.Clear().IsNone())
}

func TestTargetAccessors(t *testing.T) {
	f := Field("VendorName")
	assert.Equal(t, KindField, f.Kind())
	assert.Equal(t, "VendorName", f.Name())
	assert.Equal(t, "field:VendorName", f.String())

	li := LineItem(4)
	assert.Equal(t, KindLineItem, li.Kind())
	assert.Equal(t, 4, li.Index())
	assert.Equal(t, "line_item:4", li.String())

	assert.Equal(t, "none", None().String())
	assert.NotEqual(t, LineItem(0), None())
}

func TestTargetJSON(t *testing.T) {
	tests := []struct {
		target Target
		want   string
	}{
		{None(), `{"kind":"none"}`},
		{Field("InvoiceTotal"), `{"kind":"field","name":"InvoiceTotal"}`},
		{LineItem(0), `{"kind":"line_item","index":0}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.target)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(data))

		var back Target
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, tt.target, back)
	}

	var bad Target
	require.Error(t, json.Unmarshal([]byte(`{"kind":"stamp"}`), &bad))
}

func TestTransitionString(t *testing.T) {
	assert.Equal(t, "activated", Activated.String())
	assert.Equal(t, "switched", Switched.String())
	assert.Equal(t, "cleared", Cleared.String())
	assert.Equal(t, "unchanged", Unchanged.String())
	assert.Equal(t, "line_item", KindLineItem.String())
}

package webhook

import (
	"encoding/json"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

func TestExpandableID(t *testing.T) {
	var out struct {
		A ExpandableID `json:"a"`
		B ExpandableID `json:"b"`
		C ExpandableID `json:"c"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(`{"a":"cus_1","b":{"id":"cus_2","object":"customer"},"c":null}`), &out))
	assert.Equal(t, ExpandableID("cus_1"), out.A)
	assert.Equal(t, ExpandableID("cus_2"), out.B)
	assert.Empty(t, out.C)
}

func TestDecodeVariants(t *testing.T) {
	raw := func(s string) *stripe.EventData { return &stripe.EventData{Raw: json.RawMessage(s)} }

	cases := []struct {
		typ  stripe.EventType
		data string
		want any
	}{
		{"product.deleted", `{"id":"prod_1"}`, ProductEvent{}},
		{"customer.updated", `{"id":"cus_1","name":"A"}`, CustomerEvent{}},
		{"price.created", `{"id":"price_1","product":"prod_1"}`, PriceEvent{}},
		{"invoice.payment_succeeded", `{"id":"in_1"}`, InvoiceEvent{}},
		{"invoice.voided", `{"id":"in_1","replaced_by":"in_2"}`, InvoiceVoidedEvent{}},
		{"invoice.deleted", `{"id":"in_1"}`, InvoiceDeletedEvent{}},
	}
	for _, tc := range cases {
		t.Run(string(tc.typ), func(t *testing.T) {
			ev, err := Decode(stripe.Event{ID: "evt_1", Type: tc.typ, Data: raw(tc.data)})
			require.NoError(t, err)
			assert.IsType(t, tc.want, ev)
			assert.Equal(t, string(tc.typ), ev.Meta().Type)
		})
	}

	ev, err := Decode(stripe.Event{ID: "evt_2", Type: "invoice.payment_succeeded", Data: raw(`{"id":"in_1"}`)})
	require.NoError(t, err)
	assert.Equal(t, ActionPaymentSucceeded, ev.(InvoiceEvent).Action)

	_, err = Decode(stripe.Event{ID: "evt_3", Type: "charge.refunded", Data: raw(`{"id":"ch_1"}`)})
	assert.ErrorIs(t, err, ErrUnhandled)

	_, err = Decode(stripe.Event{ID: "evt_4", Type: "invoice.paid", Data: raw(`{"id":`)})
	assert.ErrorIs(t, err, ErrMalformed)
}

package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateEvent_SignCoherence(t *testing.T) {
	base := StockEvent{
		Shop:       "shop-1",
		Product:    "prod-1",
		OccurredAt: time.Now(),
		RecordedAt: time.Now(),
	}

	cases := []struct {
		name    string
		kind    EventKind
		qty     int64
		wantErr bool
	}{
		{"sale must be negative", KindSale, -3, false},
		{"positive sale rejected", KindSale, 3, true},
		{"restock must be positive", KindRestock, 10, false},
		{"negative restock rejected", KindRestock, -10, true},
		{"decant out negative ok", KindDecantOut, -2, false},
		{"decant out positive rejected", KindDecantOut, 2, true},
		{"decant in positive ok", KindDecantIn, 6, false},
		{"decant in negative rejected", KindDecantIn, -6, true},
		{"zero quantity rejected", KindSale, 0, true},
		{"unknown kind rejected", EventKind("RETURN"), 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev := base
			ev.Kind = tc.kind
			ev.Quantity = tc.qty

			err := ValidateEvent(ev)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEvent_RequiredFields(t *testing.T) {
	ev := StockEvent{Kind: KindSale, Quantity: -1}

	ev.Shop = ""
	ev.Product = "prod-1"
	assert.ErrorIs(t, ValidateEvent(ev), ErrInvalidInput)

	ev.Shop = "shop-1"
	ev.Product = ""
	assert.ErrorIs(t, ValidateEvent(ev), ErrInvalidInput)
}

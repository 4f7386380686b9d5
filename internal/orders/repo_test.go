package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-shopfront.git/internal/apperr"
	"github.com/ariefcatur/go-shopfront.git/internal/catalog"
)

// The catalog store is the stock arbiter materialization runs through.
var _ StockReserver = (*catalog.Store)(nil)

func TestMaterialize_EmptyLinesRejected(t *testing.T) {
	r := &Repo{}

	_, _, err := r.Materialize(context.Background(), MaterializeParams{
		BuyerID:  "buyer-1",
		IntentID: "pi-1",
	})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

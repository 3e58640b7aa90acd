package payments

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
)

func TestBuildMetadataOmitsBlankValues(t *testing.T) {
	meta, err := BuildMetadata(Totals{
		UserID:     42,
		EventID:    9,
		CheckoutID: "c-1",
		TaxTotal:   decimal.RequireFromString("1.5"),
		SubTotal:   decimal.RequireFromString("20"),
		GrandTotal: decimal.RequireFromString("21.5"),
	}, "1,2,3")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		MetaUserID:      "42",
		MetaEventID:     "9",
		MetaCheckoutID:  "c-1",
		MetaTaxTotal:    "1.50",
		MetaSubTotal:    "20.00",
		MetaGrandTotal:  "21.50",
		MetaSnapshotIDs: "1,2,3",
	}, meta)
	for key, value := range meta {
		assert.NotEmpty(t, value, key)
	}
}

func TestBuildMetadataKeepsDiscount(t *testing.T) {
	meta, err := BuildMetadata(Totals{
		DiscountAmount: decimal.RequireFromString("5"),
		DiscountCode:   "  SPRING  ",
		GrandTotal:     decimal.NewFromInt(10),
	}, "8")
	require.NoError(t, err)
	assert.Equal(t, "5.00", meta[MetaDiscountAmount])
	assert.Equal(t, "SPRING", meta[MetaDiscountCode])
}

func TestBuildMetadataTruncatesLongValues(t *testing.T) {
	meta, err := BuildMetadata(Totals{DiscountCode: strings.Repeat("é", 400)}, "1")
	require.NoError(t, err)
	code := meta[MetaDiscountCode]
	assert.LessOrEqual(t, len(code), snapshot.MaxFieldLength)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 400), code))
}

func TestBuildMetadataSplitsLongToken(t *testing.T) {
	ids := make([]int64, 0, 120)
	for i := int64(1); i <= 120; i++ {
		ids = append(ids, 50_000_000+i)
	}
	token := snapshot.EncodeToken(ids)

	meta, err := BuildMetadata(Totals{GrandTotal: decimal.NewFromInt(1)}, token)
	require.NoError(t, err)
	assert.Contains(t, meta, MetaSnapshotIDs)
	assert.Contains(t, meta, MetaSnapshotIDs+"_2")
	for key, value := range meta {
		assert.LessOrEqual(t, len(value), snapshot.MaxFieldLength, key)
	}

	assert.Equal(t, token, TokenFromMetadata(meta))
	parsed, err := snapshot.ParseToken(TokenFromMetadata(meta))
	require.NoError(t, err)
	assert.Equal(t, ids, parsed)
}

func TestTokenFromMetadataOrdersChunksNumerically(t *testing.T) {
	meta := map[string]string{
		MetaSnapshotIDs + "_10": "10",
		MetaSnapshotIDs:         "1",
		MetaSnapshotIDs + "_2":  "2",
		MetaSnapshotIDs + "_x":  "99",
		MetaUserID:              "5",
	}
	for i := 3; i <= 9; i++ {
		meta[tokenKey(i-1)] = string(rune('0' + i))
	}
	assert.Equal(t, "1,2,3,4,5,6,7,8,9,10", TokenFromMetadata(meta))
	assert.Empty(t, TokenFromMetadata(nil))
}

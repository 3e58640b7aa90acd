package payments

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
)

const (
	MetaUserID         = "user_id"
	MetaEventID        = "event_id"
	MetaCheckoutID     = "checkout_id"
	MetaTaxTotal       = "tax_total"
	MetaDiscountAmount = "discount_amount"
	MetaSubTotal       = "sub_total"
	MetaGrandTotal     = "grand_total"
	MetaDiscountCode   = "discount_code"
	MetaSnapshotIDs    = "snapshot_ids"

	// maxMetadataKeys is the processor's per object key ceiling.
	maxMetadataKeys = 50
)

// Totals are the buyer facing money figures at checkout time.
type Totals struct {
	UserID         int64
	EventID        int64
	CheckoutID     string
	TaxTotal       decimal.Decimal
	DiscountAmount decimal.Decimal
	SubTotal       decimal.Decimal
	GrandTotal     decimal.Decimal
	DiscountCode   string
}

// BuildMetadata stringifies the totals and the correlation token for the
// payment intent. Absent or blank values are left out entirely, and a zero
// discount counts as absent. Every value is
// capped at the field limit, and the token is split across snapshot_ids,
// snapshot_ids_2, ... rather than cut.
func BuildMetadata(t Totals, token string) (map[string]string, error) {
	meta := map[string]string{}
	put := func(key, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		meta[key] = truncate(value, snapshot.MaxFieldLength)
	}

	if t.UserID > 0 {
		put(MetaUserID, strconv.FormatInt(t.UserID, 10))
	}
	if t.EventID > 0 {
		put(MetaEventID, strconv.FormatInt(t.EventID, 10))
	}
	put(MetaCheckoutID, t.CheckoutID)
	put(MetaTaxTotal, t.TaxTotal.StringFixed(2))
	if !t.DiscountAmount.IsZero() {
		put(MetaDiscountAmount, t.DiscountAmount.StringFixed(2))
	}
	put(MetaSubTotal, t.SubTotal.StringFixed(2))
	put(MetaGrandTotal, t.GrandTotal.StringFixed(2))
	put(MetaDiscountCode, t.DiscountCode)

	chunks, err := snapshot.Chunk(token, snapshot.MaxFieldLength)
	if err != nil {
		return nil, err
	}
	if len(meta)+len(chunks) > maxMetadataKeys {
		return nil, fmt.Errorf("metadata needs %d keys, limit is %d", len(meta)+len(chunks), maxMetadataKeys)
	}
	for i, chunk := range chunks {
		meta[tokenKey(i)] = chunk
	}
	return meta, nil
}

// TokenFromMetadata reassembles the correlation token from its chunk keys.
func TokenFromMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	type part struct {
		index int
		value string
	}
	var parts []part
	for key, value := range meta {
		idx, ok := tokenIndex(key)
		if !ok {
			continue
		}
		parts = append(parts, part{index: idx, value: value})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].index < parts[j].index })
	chunks := make([]string, len(parts))
	for i, p := range parts {
		chunks[i] = p.value
	}
	return snapshot.JoinChunks(chunks)
}

func tokenKey(i int) string {
	if i == 0 {
		return MetaSnapshotIDs
	}
	return fmt.Sprintf("%s_%d", MetaSnapshotIDs, i+1)
}

func tokenIndex(key string) (int, bool) {
	if key == MetaSnapshotIDs {
		return 0, true
	}
	suffix, ok := strings.CutPrefix(key, MetaSnapshotIDs+"_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 2 {
		return 0, false
	}
	return n - 1, true
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := value[:limit]
	// do not leave half a multi byte rune behind
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

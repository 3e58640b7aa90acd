package snapshot

import (
	"fmt"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
)

const (
	// MaxFieldLength is the processor's per value metadata ceiling.
	MaxFieldLength = 500
	// MaxTokenChunks bounds how many metadata fields one token may span.
	MaxTokenChunks = 20

	tokenSeparator = ","
)

// EncodeToken joins snapshot line ids as comma separated decimals.
func EncodeToken(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, tokenSeparator)
}

// ParseToken is the strict inverse of EncodeToken. Blank entries, signs,
// non-positive ids and duplicates are rejected.
func ParseToken(token string) ([]int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation token is empty")
	}
	parts := strings.Split(token, tokenSeparator)
	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for i, part := range parts {
		if part == "" || strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("correlation token entry %d is not a decimal id", i))
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("correlation token entry %d is out of range", i))
		}
		if _, dup := seen[id]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("correlation token repeats id %d", id))
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// Chunk splits token on separator boundaries into pieces of at most limit
// characters. An id is never cut. More than MaxTokenChunks pieces is a
// validation error, the cart has to be split by the caller.
func Chunk(token string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = MaxFieldLength
	}
	if token == "" {
		return nil, nil
	}
	if len(token) <= limit {
		return []string{token}, nil
	}

	var (
		chunks  []string
		current strings.Builder
	)
	for _, id := range strings.Split(token, tokenSeparator) {
		if len(id) > limit {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "correlation id exceeds metadata field limit")
		}
		extra := len(id)
		if current.Len() > 0 {
			extra++
		}
		if current.Len()+extra > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(tokenSeparator)
		}
		current.WriteString(id)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	if len(chunks) > MaxTokenChunks {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart has too many lines for a single payment").
			WithDetails(map[string]any{"token_length": len(token), "max_chunks": MaxTokenChunks})
	}
	return chunks, nil
}

// JoinChunks reassembles chunks produced by Chunk.
func JoinChunks(chunks []string) string {
	nonEmpty := chunks[:0:0]
	for _, c := range chunks {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return strings.Join(nonEmpty, tokenSeparator)
}

package collector

import (
	"fmt"

	"github.com/systemd/coredump-go/internal/coredump"
)

// ExtractContext classifies every field in fields whose name matches a
// context key into a Context record, and validates it (spec.md §4.2:
// "All non-empty required context keys must be present before processing
// may begin").
func ExtractContext(fields []coredump.Field) (*coredump.Context, error) {
	ctx := coredump.New()

	for _, f := range fields {
		key, ok := coredump.ParseContextKey(f.Name)
		if !ok {
			continue
		}

		ctx.Set(key, string(f.Value))
	}

	if err := ctx.Validate(); err != nil {
		return nil, fmt.Errorf("bad-message: %w", err)
	}

	return ctx, nil
}

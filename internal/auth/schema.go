package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/savaki/secret-sync/internal/services"
)

// fieldReader reads one provider schema from a ParameterStore, collecting every
// missing or invalid field so the diagnostic names all of them at once.
type fieldReader struct {
	ctx   context.Context
	store services.ParameterStore
	errs  *multierror.Error
}

func newFieldReader(ctx context.Context, store services.ParameterStore) *fieldReader {
	return &fieldReader{ctx: ctx, store: store}
}

func (r *fieldReader) fail(err error) {
	r.errs = multierror.Append(r.errs, err)
}

func (r *fieldReader) lookup(key string) (string, bool) {
	value, ok, err := r.store.Lookup(r.ctx, key)
	if err != nil {
		r.fail(fmt.Errorf("failed to read %s: %w", key, err))
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

func (r *fieldReader) required(key string) string {
	value, ok := r.lookup(key)
	if !ok {
		r.fail(fmt.Errorf("missing required %s", key))
	}
	return value
}

func (r *fieldReader) optional(key, fallback string) string {
	if value, ok := r.lookup(key); ok {
		return value
	}
	return fallback
}

func (r *fieldReader) url(key string) *url.URL {
	raw := r.required(key)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		r.fail(fmt.Errorf("invalid %s %q: must be an absolute URL", key, raw))
		return nil
	}
	return u
}

func (r *fieldReader) duration(key string, fallback time.Duration) time.Duration {
	raw, ok := r.lookup(key)
	if !ok {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		r.fail(fmt.Errorf("invalid %s %q: must be a positive duration such as 30s", key, raw))
		return fallback
	}
	return d
}

func (r *fieldReader) list(key string) []string {
	value, _ := r.lookup(key)
	return services.SplitList(value)
}

// err returns nil when every field parsed, otherwise a single-line diagnostic
// prefixed with the provider name.
func (r *fieldReader) err(kind ProviderType) error {
	if r.errs == nil {
		return nil
	}
	r.errs.ErrorFormat = func(errs []error) string {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Sprintf("%s config: %s", kind, strings.Join(msgs, "; "))
	}
	return r.errs.ErrorOrNil()
}

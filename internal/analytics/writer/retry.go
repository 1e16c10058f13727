package writer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy bounds the attempts made for one batch.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 250 * time.Millisecond
	}
	if p.MaximumBackoff < p.InitialBackoff {
		p.MaximumBackoff = max(2*time.Second, p.InitialBackoff)
	}
	return p
}

func (p RetryPolicy) run(ctx context.Context, insert func() error) error {
	wait := p.InitialBackoff
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := insert()
		if err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !transient(err) {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, p.MaximumBackoff)
	}
}

// transient reports whether a retry can succeed. A per-row failure is only
// transient when every row failed for a transient reason.
func transient(err error) bool {
	if err == nil {
		return false
	}

	var putErr bigquery.PutMultiError
	if errors.As(err, &putErr) {
		if len(putErr) == 0 {
			return false
		}
		for _, rowErr := range putErr {
			if !allTransient(rowErr.Errors) {
				return false
			}
		}
		return true
	}

	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusRequestTimeout,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal,
			codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !transient(err) {
			return false
		}
	}
	return true
}

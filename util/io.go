package util

import (
	"bufio"
	"context"
	"io"
	"strings"
)

type CancelableIoReader struct {
	ctx context.Context
	r   io.Reader
}

func NewCancelableIoReader(ctx context.Context, r io.Reader) *CancelableIoReader {
	return &CancelableIoReader{
		ctx: ctx,
		r:   r,
	}
}

func (cr *CancelableIoReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
		return cr.r.Read(p)
	}
}

// ReadCommands calls fn with every non-blank line of r, split into fields.
// It returns nil at EOF and the context error once ctx is done.
func ReadCommands(ctx context.Context, r io.Reader, fn func(fields []string)) error {
	scanner := bufio.NewScanner(NewCancelableIoReader(ctx, r))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			fn(fields)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

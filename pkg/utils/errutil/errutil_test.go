package errutil_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aiga-lab/mnemosyne/pkg/utils/errutil"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestHandle(t *testing.T) {
	t.Run("returns nil for nil error", func(t *testing.T) {
		gt.NoError(t, errutil.Handle(context.Background(), nil, "should not log"))
	})

	t.Run("logs goerr values and returns the error unchanged", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

		err := goerr.New("storage unavailable", goerr.V("userID", "u1"))
		got := errutil.Handle(ctx, err, "failed to record turn")

		gt.Value(t, got).Equal(err)
		gt.Bool(t, strings.Contains(buf.String(), "failed to record turn")).True()
		gt.Bool(t, strings.Contains(buf.String(), "storage unavailable")).True()
		gt.Bool(t, strings.Contains(buf.String(), "u1")).True()
	})
}

func TestHandleHTTP(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	w := httptest.NewRecorder()
	errutil.HandleHTTP(ctx, w, goerr.New("bad payload"), 400)

	gt.Value(t, w.Code).Equal(400)
	gt.Bool(t, strings.Contains(w.Body.String(), "bad payload")).True()
	gt.Bool(t, strings.Contains(buf.String(), "bad payload")).True()
}

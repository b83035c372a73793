package middleware

import (
	"net/http"

	apperrors "github.com/curtistech/unlock-server/internal/errors"
	"github.com/curtistech/unlock-server/internal/httputil"
)

type contextKey string

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteError(w, err)
}

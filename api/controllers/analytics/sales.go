package analytics

import (
	"net/http"

	"github.com/kitsuneprints/storefront-backend/api/responses"
	"github.com/kitsuneprints/storefront-backend/internal/analytics"
	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

// SalesReport returns order and revenue KPIs for the requested window.
func SalesReport(service analytics.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if service == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "analytics is not configured"))
			return
		}

		start, end, err := salesWindow(r.URL.Query(), clock())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := service.Report(ctx, types.SalesReportRequest{Start: start, End: end})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

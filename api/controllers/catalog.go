package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kitsuneprints/storefront-backend/api/responses"
	"github.com/kitsuneprints/storefront-backend/api/validators"
	"github.com/kitsuneprints/storefront-backend/internal/categories"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

type categoryDirectory interface {
	List(ctx context.Context) ([]categories.CategoryDTO, error)
	Update(ctx context.Context, slug string, input categories.UpdateInput) (*categories.CategoryDTO, error)
}

type paymentMethodLister interface {
	Methods() []paymentmethods.Method
}

// ListCategories returns the fixed category set with product counts.
func ListCategories(svc categoryDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "category service unavailable"))
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminUpdateCategory edits a category's display fields.
func AdminUpdateCategory(svc categoryDirectory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "category service unavailable"))
			return
		}

		var payload categories.UpdateInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.Update(r.Context(), chi.URLParam(r, "slug"), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// ListPaymentMethods returns the methods offered at checkout.
func ListPaymentMethods(catalog paymentMethodLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods := []paymentmethods.Method{}
		if catalog != nil {
			methods = catalog.Methods()
		}
		responses.WriteSuccess(w, methods)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/internal/products"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

// catalogFile is the on-disk seed format.
type catalogFile struct {
	Products []productEntry `yaml:"products"`
	Coupons  []couponEntry  `yaml:"coupons"`
}

type productEntry struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Category    string      `yaml:"category"`
	Images      []string    `yaml:"images"`
	Tags        []string    `yaml:"tags"`
	Featured    bool        `yaml:"featured"`
	InStock     *bool       `yaml:"inStock"`
	Sizes       []sizeEntry `yaml:"sizes"`
}

type sizeEntry struct {
	Label         string `yaml:"label"`
	Price         string `yaml:"price"`
	OriginalPrice string `yaml:"originalPrice"`
}

type couponEntry struct {
	Code              string    `yaml:"code"`
	Description       string    `yaml:"description"`
	DiscountType      string    `yaml:"discountType"`
	DiscountValue     string    `yaml:"discountValue"`
	MinOrderAmount    string    `yaml:"minOrderAmount"`
	MaxDiscountAmount string    `yaml:"maxDiscountAmount"`
	UsageLimit        *int      `yaml:"usageLimit"`
	ValidFrom         time.Time `yaml:"validFrom"`
	ValidUntil        time.Time `yaml:"validUntil"`
	Inactive          bool      `yaml:"inactive"`
}

type productCreator interface {
	Create(ctx context.Context, input products.ProductInput) (*products.ProductDTO, error)
}

type couponCreator interface {
	Create(ctx context.Context, input coupons.CouponInput) (*models.Coupon, error)
}

type seedReport struct {
	Products       int
	Coupons        int
	SkippedCoupons int
}

func loadCatalog(r io.Reader) (*catalogFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file catalogFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &file, nil
}

func (e productEntry) input() (products.ProductInput, error) {
	sizes := make([]products.SizeInput, 0, len(e.Sizes))
	for _, s := range e.Sizes {
		price, err := decimal.NewFromString(strings.TrimSpace(s.Price))
		if err != nil {
			return products.ProductInput{}, fmt.Errorf("size %q price: %w", s.Label, err)
		}
		size := products.SizeInput{Label: s.Label, Price: price}
		if s.OriginalPrice != "" {
			original, err := decimal.NewFromString(strings.TrimSpace(s.OriginalPrice))
			if err != nil {
				return products.ProductInput{}, fmt.Errorf("size %q original price: %w", s.Label, err)
			}
			size.OriginalPrice = &original
		}
		sizes = append(sizes, size)
	}
	inStock := true
	if e.InStock != nil {
		inStock = *e.InStock
	}
	return products.ProductInput{
		Name:        e.Name,
		Description: e.Description,
		Category:    e.Category,
		Images:      e.Images,
		Sizes:       sizes,
		InStock:     inStock,
		Featured:    e.Featured,
		Tags:        e.Tags,
	}, nil
}

func (e couponEntry) input() (coupons.CouponInput, error) {
	discountType, err := enums.ParseDiscountType(e.DiscountType)
	if err != nil {
		return coupons.CouponInput{}, err
	}
	value, err := decimal.NewFromString(strings.TrimSpace(e.DiscountValue))
	if err != nil {
		return coupons.CouponInput{}, fmt.Errorf("discount value: %w", err)
	}
	minOrder, err := optionalDecimal(e.MinOrderAmount)
	if err != nil {
		return coupons.CouponInput{}, fmt.Errorf("min order amount: %w", err)
	}
	maxDiscount, err := optionalDecimal(e.MaxDiscountAmount)
	if err != nil {
		return coupons.CouponInput{}, fmt.Errorf("max discount amount: %w", err)
	}
	active := !e.Inactive
	return coupons.CouponInput{
		Code:              e.Code,
		Description:       e.Description,
		DiscountType:      discountType,
		DiscountValue:     value,
		MinOrderAmount:    minOrder,
		MaxDiscountAmount: maxDiscount,
		UsageLimit:        e.UsageLimit,
		ValidFrom:         e.ValidFrom,
		ValidUntil:        e.ValidUntil,
		IsActive:          &active,
	}, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// seedCatalog creates every entry it can and reports the rest together.
// Coupons whose code already exists are skipped so a file can be re-applied.
func seedCatalog(ctx context.Context, file *catalogFile, productSvc productCreator, couponSvc couponCreator, dryRun bool) (seedReport, error) {
	var (
		report seedReport
		errs   error
	)
	for i, entry := range file.Products {
		input, err := entry.input()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("products[%d] %q: %w", i, entry.Name, err))
			continue
		}
		if dryRun {
			report.Products++
			continue
		}
		if _, err := productSvc.Create(ctx, input); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("products[%d] %q: %w", i, entry.Name, err))
			continue
		}
		report.Products++
	}
	for i, entry := range file.Coupons {
		input, err := entry.input()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("coupons[%d] %q: %w", i, entry.Code, err))
			continue
		}
		if dryRun {
			report.Coupons++
			continue
		}
		if _, err := couponSvc.Create(ctx, input); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
				report.SkippedCoupons++
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("coupons[%d] %q: %w", i, entry.Code, err))
			continue
		}
		report.Coupons++
	}
	return report, errs
}

func seedCmd(open opener) *cobra.Command {
	var (
		path   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load products and coupons from a YAML catalog file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			file, err := loadCatalog(f)
			if err != nil {
				return err
			}

			var (
				productSvc productCreator
				couponSvc  couponCreator
			)
			if !dryRun {
				rt, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer rt.Close()
				productSvc, couponSvc = rt.svcs.Products, rt.svcs.Coupons
			}

			report, err := seedCatalog(cmd.Context(), file, productSvc, couponSvc, dryRun)
			verb := "created"
			if dryRun {
				verb = "valid"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "products: %d %s\ncoupons: %d %s, %d already present\n",
				report.Products, verb, report.Coupons, verb, report.SkippedCoupons)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "catalog YAML file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate the file without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

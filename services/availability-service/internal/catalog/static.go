package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/tourbook/services/availability-service/internal/model"
	"gopkg.in/yaml.v3"
)

type staticFile struct {
	Products     []productDTO `yaml:"products" validate:"required,min=1,dive"`
	Availability []recordDTO  `yaml:"availability" validate:"dive"`
}

// Static is an in-memory catalogue loaded from a YAML file. Slots are the same on every date.
type Static struct {
	products map[string]model.Product
	packages map[string]model.Package
	records  map[string][]model.AvailabilityRecord
}

func LoadStatic(path string, loc *time.Location) (*Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	return ParseStatic(f, loc)
}

func ParseStatic(r io.Reader, loc *time.Location) (*Static, error) {
	if loc == nil {
		loc = time.Local
	}
	var file staticFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog file: %w", err)
	}
	if err := validator.New().Struct(file); err != nil {
		return nil, fmt.Errorf("validate catalog file: %w", err)
	}

	s := &Static{
		products: make(map[string]model.Product, len(file.Products)),
		packages: make(map[string]model.Package),
		records:  make(map[string][]model.AvailabilityRecord),
	}
	for _, dto := range file.Products {
		if _, dup := s.products[dto.ID]; dup {
			return nil, fmt.Errorf("duplicate product %q", dto.ID)
		}
		p, err := dto.toModel(loc)
		if err != nil {
			return nil, fmt.Errorf("product %q: %w", dto.ID, err)
		}
		s.products[p.ID] = p
		for _, pkg := range p.Packages {
			if _, dup := s.packages[pkg.ID]; dup {
				return nil, fmt.Errorf("duplicate package %q", pkg.ID)
			}
			s.packages[pkg.ID] = pkg
		}
	}
	for i, dto := range file.Availability {
		if _, ok := s.products[dto.ProductID]; !ok {
			return nil, fmt.Errorf("availability[%d]: unknown product %q", i, dto.ProductID)
		}
		rec, err := dto.toModel(loc)
		if err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}
		s.records[dto.ProductID] = append(s.records[dto.ProductID], rec)
	}
	return s, nil
}

func (s *Static) Product(_ context.Context, productID string) (model.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	return p, nil
}

func (s *Static) ProductAvailability(_ context.Context, productID string, start, end time.Time) ([]model.AvailabilityRecord, error) {
	if _, ok := s.products[productID]; !ok {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	from, to := model.DateKey(start), model.DateKey(end)
	var out []model.AvailabilityRecord
	for _, r := range s.records[productID] {
		if day := model.DateKey(r.Date); day >= from && day <= to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Static) PackageSlots(_ context.Context, packageID string, _ time.Time) ([]model.SlotConfig, error) {
	pkg, ok := s.packages[packageID]
	if !ok {
		return nil, fmt.Errorf("package %s: %w", packageID, ErrNotFound)
	}
	return pkg.Slots, nil
}

// ProductIDs lists the catalogue's products in no particular order.
func (s *Static) ProductIDs() []string {
	ids := make([]string, 0, len(s.products))
	for id := range s.products {
		ids = append(ids, id)
	}
	return ids
}

package shop

// PackageKey identifies a package within its product.
type PackageKey struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	PackageID string `json:"package_id" validate:"required,max=64"`
}

// String is for logs and messages only, never parse it back.
func (k PackageKey) String() string { return k.ProductID + "/" + k.PackageID }

func (k PackageKey) Empty() bool { return k.ProductID == "" || k.PackageID == "" }

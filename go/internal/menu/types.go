package menu

import (
	"errors"
	"time"
)

var (
	ErrUnsupportedImageType = errors.New("unsupported image content type")
	ErrImageTooLarge        = errors.New("image exceeds size limit")
	ErrStorageDisabled      = errors.New("image storage is not configured")
	ErrInvalidProductID     = errors.New("invalid product id")
)

// Prices are integer minor units (cents) throughout.

// Modifier is an option a customer can add to a product
type Modifier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// CartItem is one line in a kiosk cart. SelectedModifiers holds ids from
// Modifiers.
type CartItem struct {
	ProductID         string     `json:"productId"`
	Name              string     `json:"name"`
	Price             int64      `json:"price"`
	Quantity          int        `json:"quantity"`
	DiscountValue     int64      `json:"discountValue"`
	Modifiers         []Modifier `json:"modifiers,omitempty"`
	SelectedModifiers []string   `json:"selectedModifiers,omitempty"`
	Notes             string     `json:"notes,omitempty"`
}

// ProductDraft is an admin's unsaved product
type ProductDraft struct {
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category"`
	Price         int64      `json:"price"`
	DiscountValue int64      `json:"discountValue"`
	ImageURL      string     `json:"imageUrl,omitempty"`
	Modifiers     []Modifier `json:"modifiers,omitempty"`
	Available     bool       `json:"available"`
}

type Category struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	SortOrder int    `json:"sortOrder"`
}

// Problem locates one validation failure. Index is the cart line, -1 for
// the request itself.
type Problem struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ListCategoriesRequest struct{}

type ListCategoriesResponse struct {
	Categories []Category `json:"categories"`
}

type ValidateCartRequest struct {
	Items    []CartItem `json:"items"`
	Currency string     `json:"currency,omitempty"`
}

type ValidateCartResponse struct {
	Valid         bool      `json:"valid"`
	Problems      []Problem `json:"problems,omitempty"`
	SubtotalCents int64     `json:"subtotalCents"`
	Subtotal      string    `json:"subtotal"`
}

type ValidateProductRequest struct {
	Draft ProductDraft `json:"draft"`
}

type ValidateProductResponse struct {
	Valid    bool      `json:"valid"`
	Problems []Problem `json:"problems,omitempty"`
}

type PresignImageUploadRequest struct {
	ProductID   string `json:"productId"`
	ContentType string `json:"contentType"`
}

// PresignedUpload tells a client where to PUT an image and where it will be
// served from afterwards.
type PresignedUpload struct {
	URL       string              `json:"url"`
	Method    string              `json:"method"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Key       string              `json:"key"`
	PublicURL string              `json:"publicUrl"`
	ExpiresAt time.Time           `json:"expiresAt"`
}

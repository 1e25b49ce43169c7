package models

import (
	"fmt"
	"strconv"
	"strings"
)

type ProductKeyKind string

const (
	ProductKeyCentralRef   ProductKeyKind = "central_ref"
	ProductKeyStandaloneId ProductKeyKind = "standalone_id"
	ProductKeyProductNo    ProductKeyKind = "product_no"
)

// ProductKey identifies a catalog line across the denormalized stock pools.
// Exactly one of the three shapes is set, per Kind.
type ProductKey struct {
	Kind      ProductKeyKind
	DocId     int
	Index     int
	Id        int
	ProductNo string
}

func CentralRef(docId int, index int) ProductKey {
	return ProductKey{Kind: ProductKeyCentralRef, DocId: docId, Index: index}
}

func StandaloneId(id int) ProductKey {
	return ProductKey{Kind: ProductKeyStandaloneId, Id: id}
}

func ProductNoKey(productNo string) ProductKey {
	return ProductKey{Kind: ProductKeyProductNo, ProductNo: productNo}
}

func (k ProductKey) IsZero() bool {
	return k.Kind == ""
}

// String renders the canonical stored form: "doc:<docId>:<index>" for a
// central reference, "id:<id>" for a standalone line id, and the bare
// product number otherwise.
func (k ProductKey) String() string {
	switch k.Kind {
	case ProductKeyCentralRef:
		return fmt.Sprintf("doc:%d:%d", k.DocId, k.Index)
	case ProductKeyStandaloneId:
		return fmt.Sprintf("id:%d", k.Id)
	case ProductKeyProductNo:
		return k.ProductNo
	}
	return ""
}

// ParseProductKey reads the canonical form back. Any string that does not
// match a recognized prefix is treated as a product number.
func ParseProductKey(s string) (ProductKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ProductKey{}, &ValidationError{Message: "empty product key"}
	}
	if rest, ok := strings.CutPrefix(s, "doc:"); ok {
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return ProductKey{}, &ValidationError{Message: "malformed central product key: " + s}
		}
		docId, err := strconv.Atoi(parts[0])
		if err != nil {
			return ProductKey{}, &ValidationError{Message: "malformed central product key: " + s}
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			return ProductKey{}, &ValidationError{Message: "malformed central product key: " + s}
		}
		return CentralRef(docId, index), nil
	}
	if rest, ok := strings.CutPrefix(s, "id:"); ok {
		id, err := strconv.Atoi(rest)
		if err != nil {
			return ProductKey{}, &ValidationError{Message: "malformed standalone product key: " + s}
		}
		return StandaloneId(id), nil
	}
	return ProductNoKey(s), nil
}

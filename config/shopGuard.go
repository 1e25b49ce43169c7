package config

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/shopstock_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShopGuardPlugin enforces multi-shop isolation by automatically scoping
// queries/updates/deletes to the request's shop_id when the model has a
// shop_id column.
//
// NOTE: this does NOT apply to Raw SQL queries. Those must include shop_id
// manually.
type ShopGuardPlugin struct{}

func NewShopGuardPlugin() *ShopGuardPlugin { return &ShopGuardPlugin{} }

func (p *ShopGuardPlugin) Name() string { return "shop_guard" }

func (p *ShopGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("shop_guard:query", shopGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("shop_guard:row", shopGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("shop_guard:update", shopGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("shop_guard:delete", shopGuardCallback); err != nil {
		return err
	}
	return nil
}

func shopGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	shopID := shopIdFromContext(ctx)
	if shopID == "" {
		return
	}

	// Only apply if the current model/table includes a shop_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasShopID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "shop_id") {
			hasShopID = true
			break
		}
	}
	if !hasShopID {
		return
	}

	// Don't duplicate an explicit shop filter.
	if whereHasShopID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "shop_id"},
				Value:  shopID,
			},
		},
	})
}

func shopIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyShopId).(string); ok && v != "" {
		return v
	}
	return ""
}

func whereHasShopID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasShopID(e) {
			return true
		}
	}
	return false
}

func exprHasShopID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsShopID(v.Column)
	case clause.Neq:
		return colIsShopID(v.Column)
	case clause.IN:
		return colIsShopID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasShopID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasShopID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "shop_id")
	default:
		return false
	}
}

func colIsShopID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "shop_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "shop_id")
	default:
		return false
	}
}
